package crm_sync

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	C "crmbridge/config"
	"crmbridge/model/model"
)

func leadTimelineURL(leadID uint64) string {
	domain := C.GetAPIDomain()
	if domain == "" {
		return ""
	}
	return fmt.Sprintf("%s/leads/%d/timeline", domain, leadID)
}

// Aggregator builds per lead activity timelines from the host's
// engagement tables: point changes, email stats and form submissions,
// concatenated kind after kind in that order. Within a kind entries
// keep the store's chronological order.
type Aggregator struct {
	store model.Store
}

func NewAggregator(store model.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Collect returns the activity timeline per lead for the window. Leads
// without activity are absent from the result.
func (a *Aggregator) Collect(projectID uint64, leadIDs []uint64,
	startDate, endDate time.Time) (map[uint64]model.ActivityList, error) {

	if len(leadIDs) == 0 {
		return map[uint64]model.ActivityList{}, nil
	}

	timelines := make(map[uint64]model.ActivityList)
	appendEntry := func(leadID uint64, entry model.ActivityEntry) {
		timeline := timelines[leadID]
		timeline.Records = append(timeline.Records, entry)
		timelines[leadID] = timeline
	}

	pointChanges, errCode := a.store.GetPointChangesByLeadIDs(projectID, leadIDs, startDate, endDate)
	if errCode == http.StatusInternalServerError || errCode == http.StatusBadRequest {
		return nil, errors.New("failed to get point changes")
	}
	for _, change := range pointChanges {
		appendEntry(change.LeadID, model.ActivityEntry{
			EventType:   model.ActivityEventTypePoint,
			Name:        change.EventName,
			Description: fmt.Sprintf("%s (%+d)", change.ActionName, change.Delta),
			DateAdded:   change.DateAdded,
			SourceID:    fmt.Sprintf("pointChange%d", change.ID),
		})
	}

	emailStats, errCode := a.store.GetEmailStatsByLeadIDs(projectID, leadIDs, startDate, endDate)
	if errCode == http.StatusInternalServerError || errCode == http.StatusBadRequest {
		return nil, errors.New("failed to get email stats")
	}
	for _, stat := range emailStats {
		appendEntry(stat.LeadID, model.ActivityEntry{
			EventType:   model.ActivityEventTypeEmail,
			Name:        stat.EmailName,
			Description: stat.Subject,
			DateAdded:   stat.DateSent,
			SourceID:    fmt.Sprintf("emailStat%d", stat.ID),
		})
	}

	submissions, errCode := a.store.GetFormSubmissionsByLeadIDs(projectID, leadIDs, startDate, endDate)
	if errCode == http.StatusInternalServerError || errCode == http.StatusBadRequest {
		return nil, errors.New("failed to get form submissions")
	}
	for _, submission := range submissions {
		appendEntry(submission.LeadID, model.ActivityEntry{
			EventType: model.ActivityEventTypeForm,
			Name:      submission.FormName,
			DateAdded: submission.DateSubmitted,
			SourceID:  fmt.Sprintf("formSubmission%d", submission.ID),
		})
	}

	return timelines, nil
}
