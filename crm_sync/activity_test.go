package crm_sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"crmbridge/model/model"
)

func TestAggregatorCollect(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	store.pointChanges = []model.PointChangeLog{
		{ID: 1, LeadID: 11, EventName: "page.hit", ActionName: "scored", Delta: 5, DateAdded: base.Add(3 * time.Hour)},
		{ID: 2, LeadID: 11, EventName: "email.open", ActionName: "scored", Delta: 2, DateAdded: base.Add(4 * time.Hour)},
	}
	store.emailStats = []model.EmailStat{
		{ID: 3, LeadID: 11, Subject: "Welcome", EmailName: "welcome", DateSent: base},
	}
	store.formSubs = []model.FormSubmission{
		{ID: 4, LeadID: 11, FormName: "signup", DateSubmitted: base.Add(time.Hour)},
		{ID: 5, LeadID: 12, FormName: "contact", DateSubmitted: base.Add(2 * time.Hour)},
	}

	aggregator := NewAggregator(store)
	timelines, err := aggregator.Collect(1, []uint64{11, 12}, base.Add(-time.Hour), base.Add(6*time.Hour))
	assert.Nil(t, err)

	t.Run("KindsConcatenatedInOrder", func(t *testing.T) {
		records := timelines[11].Records
		assert.Len(t, records, 4)

		// Point changes first, then email stats, then form
		// submissions, regardless of timestamps.
		assert.Equal(t, model.ActivityEventTypePoint, records[0].EventType)
		assert.Equal(t, model.ActivityEventTypePoint, records[1].EventType)
		assert.Equal(t, model.ActivityEventTypeEmail, records[2].EventType)
		assert.Equal(t, model.ActivityEventTypeForm, records[3].EventType)
	})

	t.Run("SourceIDsPrefixedPerKind", func(t *testing.T) {
		records := timelines[11].Records
		assert.Equal(t, "pointChange1", records[0].SourceID)
		assert.Equal(t, "pointChange2", records[1].SourceID)
		assert.Equal(t, "emailStat3", records[2].SourceID)
		assert.Equal(t, "formSubmission4", records[3].SourceID)
	})

	t.Run("TimelinesSplitPerLead", func(t *testing.T) {
		assert.Len(t, timelines[12].Records, 1)
		assert.Equal(t, "formSubmission5", timelines[12].Records[0].SourceID)
	})

	t.Run("EmptyLeadListCollectsNothing", func(t *testing.T) {
		timelines, err := aggregator.Collect(1, nil, base, base.Add(time.Hour))
		assert.Nil(t, err)
		assert.Empty(t, timelines)
	})
}
