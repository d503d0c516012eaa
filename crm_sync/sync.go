package crm_sync

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	"crmbridge/integration"
	"crmbridge/model/model"
	U "crmbridge/util"
)

const (
	RunStateIdle        = "idle"
	RunStateAuthorizing = "authorizing"
	RunStateFetching    = "fetching"
	RunStateReconciling = "reconciling"
	RunStateDone        = "done"
	RunStateFailed      = "failed"
)

const (
	// maxFetchPages bounds a pull so a vendor that never stops paging
	// cannot wedge the run.
	maxFetchPages = 500

	activityBatchSize = 100
)

// RecordResult is the per record outcome of a reconcile pass. Failures
// are carried per record; one bad record never aborts the run.
type RecordResult struct {
	ExternalID string
	InternalID uint64
	Created    bool
	Persisted  bool
	Err        error
}

// SyncStatus summarizes one sync run.
type SyncStatus struct {
	RunID       string
	ProjectID   uint64
	Integration string
	Object      string
	State       string
	Fetched     int
	Created     int
	Updated     int
	Skipped     int
	Failures    int
	StartTime   time.Time
	EndTime     time.Time
	Status      string
	Err         error
}

func (s *SyncStatus) finish(err error) {
	s.EndTime = time.Now().UTC()
	if err != nil {
		s.State = RunStateFailed
		s.Err = err
		s.Status = U.CRM_SYNC_STATUS_FAILURES
		return
	}

	s.State = RunStateDone
	if s.Failures > 0 {
		s.Status = U.CRM_SYNC_STATUS_FAILURES
	} else {
		s.Status = U.CRM_SYNC_STATUS_SUCCESS
	}
}

// Orchestrator drives pull, push and activity sync for one project and
// one vendor client.
type Orchestrator struct {
	projectID  uint64
	client     integration.CRMClient
	store      model.Store
	settings   model.FeatureSettings
	mapper     *Mapper
	reconciler *Reconciler
	catalog    *FieldCatalog
}

func NewOrchestrator(projectID uint64, client integration.CRMClient,
	store model.Store, settings model.FeatureSettings) *Orchestrator {

	return &Orchestrator{
		projectID:  projectID,
		client:     client,
		store:      store,
		settings:   settings,
		mapper:     NewMapper(settings),
		reconciler: NewReconciler(store, settings, client.Name()),
		catalog:    NewFieldCatalog(client),
	}
}

func (o *Orchestrator) newStatus(object string) *SyncStatus {
	return &SyncStatus{
		RunID:       xid.New().String(),
		ProjectID:   o.projectID,
		Integration: o.client.Name(),
		Object:      object,
		State:       RunStateIdle,
		StartTime:   time.Now().UTC(),
	}
}

// externalIDOf pulls the vendor record id out of the record using the
// common id field names across vendors.
func externalIDOf(record integration.Record) string {
	for _, key := range []string{"Id", "id", "contactid", "accountid", "leadid"} {
		if value, exists := record[key]; exists {
			if id := U.GetPropertyValueAsString(value); id != "" {
				return id
			}
		}
	}
	return ""
}

// clampWindow pushes the pull window's start forward to just after the
// remote org was created, so a first sync never asks for data older
// than the account.
func (o *Orchestrator) clampWindow(query integration.FetchQuery) integration.FetchQuery {
	dater, ok := o.client.(integration.OrganizationDater)
	if !ok {
		return query
	}

	orgCreated, err := dater.GetOrganizationCreatedDate()
	if err != nil {
		log.WithFields(log.Fields{"project_id": o.projectID,
			"integration": o.client.Name()}).WithError(err).
			Warn("Failed to get organization created date, keeping pull window.")
		return query
	}

	earliest := orgCreated.Add(time.Hour)
	if query.StartDate.Before(earliest) {
		query.StartDate = earliest
	}

	return query
}

// GetLeads pulls every record of an object modified in the window and
// reconciles each one. Pagination is bounded and a cursor that fails
// to advance fails the run.
func (o *Orchestrator) GetLeads(object, internalType string,
	query integration.FetchQuery) (*SyncStatus, []RecordResult) {

	status := o.newStatus(object)
	logCtx := log.WithFields(log.Fields{"project_id": o.projectID,
		"integration": o.client.Name(), "object": object, "run_id": status.RunID})

	status.State = RunStateAuthorizing
	authorized, err := o.client.IsAuthorized()
	if err != nil || !authorized {
		if err == nil {
			err = errors.New("integration not authorized")
		}
		logCtx.WithError(err).Error("Authorization check failed on sync run.")
		status.finish(err)
		return status, nil
	}

	fields, err := o.catalog.ListFields(o.projectID, object)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list vendor fields on sync run.")
		status.finish(err)
		return status, nil
	}

	query = o.clampWindow(query)
	if builder, ok := o.client.(integration.FetchQueryBuilder); ok {
		query = builder.BuildFetchQuery(object, query)
	}

	var results []RecordResult
	lastCursor := ""
	for page := 0; ; page++ {
		if page >= maxFetchPages {
			err := errors.Errorf("pull exceeded %d pages", maxFetchPages)
			logCtx.Error(err.Error())
			status.finish(err)
			return status, results
		}

		status.State = RunStateFetching
		fetched, err := o.client.GetLeads(object, query)
		if err != nil {
			logCtx.WithError(err).Error("Failed to fetch records page.")
			status.finish(err)
			return status, results
		}
		status.Fetched += len(fetched.Records)

		status.State = RunStateReconciling
		for _, record := range fetched.Records {
			result := o.reconcileRecord(object, internalType, record, fields)
			results = append(results, result)
			status.count(result)
		}

		if !fetched.HasMore {
			break
		}
		if fetched.NextCursor == "" || fetched.NextCursor == lastCursor {
			err := errors.New("pagination cursor did not advance")
			logCtx.WithField("cursor", fetched.NextCursor).Error(err.Error())
			status.finish(err)
			return status, results
		}
		lastCursor = fetched.NextCursor
		query.Cursor = fetched.NextCursor
	}

	status.finish(nil)
	logCtx.WithFields(log.Fields{"fetched": status.Fetched, "created": status.Created,
		"updated": status.Updated, "skipped": status.Skipped,
		"failures": status.Failures}).Info("Completed sync run.")

	return status, results
}

func (s *SyncStatus) count(result RecordResult) {
	switch {
	case result.Err == model.ErrIdentityUnresolved:
		s.Skipped++
	case result.Err != nil:
		s.Failures++
	case result.Created:
		s.Created++
	case result.Persisted:
		s.Updated++
	default:
		s.Skipped++
	}
}

func (o *Orchestrator) reconcileRecord(object, internalType string,
	record integration.Record, fields []model.FieldDefinition) RecordResult {

	if amender, ok := o.client.(integration.PopulateAmender); ok {
		record = amender.AmendPopulate(object, record)
	}

	externalID := externalIDOf(record)
	if externalID == "" {
		return RecordResult{Err: errors.New("record missing external id")}
	}

	result := RecordResult{ExternalID: externalID}
	if internalType == model.InternalTypeCompany {
		company, persisted, err := o.reconciler.ResolveCompany(o.projectID, object,
			record, fields, externalID)
		result.Err = err
		result.Persisted = persisted
		if company != nil {
			result.InternalID = company.ID
			result.Created = company.NewlyCreated
		}
		return result
	}

	lead, persisted, err := o.reconciler.ResolveLead(o.projectID, object,
		record, fields, externalID)
	result.Err = err
	result.Persisted = persisted
	if lead != nil {
		result.InternalID = lead.ID
		result.Created = lead.NewlyCreated
	}

	return result
}

// GetContacts reconciles a single remote contact by id, the webhook
// notification path.
func (o *Orchestrator) GetContacts(object, externalID string) RecordResult {
	record, err := o.client.GetLeadByID(object, externalID)
	if err != nil {
		return RecordResult{ExternalID: externalID, Err: err}
	}

	fields, err := o.catalog.ListFields(o.projectID, object)
	if err != nil {
		return RecordResult{ExternalID: externalID, Err: err}
	}

	return o.reconcileRecord(object, model.InternalTypeLead, record, fields)
}

// GetCompanies reconciles a single remote company by id.
func (o *Orchestrator) GetCompanies(object, externalID string) RecordResult {
	record, err := o.client.GetLeadByID(object, externalID)
	if err != nil {
		return RecordResult{ExternalID: externalID, Err: err}
	}

	fields, err := o.catalog.ListFields(o.projectID, object)
	if err != nil {
		return RecordResult{ExternalID: externalID, Err: err}
	}

	return o.reconcileRecord(object, model.InternalTypeCompany, record, fields)
}

// PushLead pushes the lead to the vendor and upserts the link. An
// already linked lead is pushed as an update against its known
// external id; either way the link's last sync date moves forward.
// Leads whose mapping produces no vendor fields are skipped, not
// failed.
func (o *Orchestrator) PushLead(object string, lead *model.Lead) RecordResult {
	logCtx := log.WithFields(log.Fields{"project_id": o.projectID,
		"integration": o.client.Name(), "object": object, "lead_id": lead.ID})

	linkedID := ""
	if entity, errCode := o.store.GetIntegrationEntityByInternalID(o.projectID,
		o.client.Name(), object, model.InternalTypeLead, lead.ID); errCode == http.StatusFound {
		linkedID = entity.ExternalID
	}

	properties, err := U.DecodePostgresJsonb(lead.Properties)
	if err != nil {
		logCtx.WithError(err).Error("Failed to decode lead properties on push.")
		return RecordResult{InternalID: lead.ID, Err: err}
	}

	fields, err := o.catalog.ListFields(o.projectID, object)
	if err != nil {
		return RecordResult{InternalID: lead.ID, Err: err}
	}

	payload, err := o.mapper.MapOutbound(model.InternalTypeLead, object,
		U.PropertiesMap(*properties), fields)
	if err == model.ErrMappingEmpty {
		logCtx.Info("Skipping push for lead with empty mapped payload.")
		return RecordResult{InternalID: lead.ID, Err: model.ErrMappingEmpty}
	}
	if err != nil {
		return RecordResult{InternalID: lead.ID, Err: err}
	}

	if amender, ok := o.client.(integration.PushAmender); ok {
		payload = amender.AmendPush(object, payload)
	}

	externalID := linkedID
	if linkedID != "" {
		if updater, ok := o.client.(integration.LeadUpdater); ok {
			if err := updater.UpdateLead(object, linkedID, payload); err != nil {
				logCtx.WithError(err).Error("Failed to update lead on vendor.")
				return RecordResult{ExternalID: linkedID, InternalID: lead.ID, Err: err}
			}
		} else if _, err := o.client.CreateLead(object, payload); err != nil {
			logCtx.WithError(err).Error("Failed to re-push lead on vendor.")
			return RecordResult{ExternalID: linkedID, InternalID: lead.ID, Err: err}
		}
	} else {
		externalID, err = o.client.CreateLead(object, payload)
		if err != nil {
			logCtx.WithError(err).Error("Failed to create lead on vendor.")
			return RecordResult{InternalID: lead.ID, Err: err}
		}
	}

	result := RecordResult{ExternalID: externalID, InternalID: lead.ID,
		Created: linkedID == "", Persisted: linkedID != ""}
	if externalID != "" {
		if err := o.reconciler.UpsertLink(o.projectID, object, externalID,
			model.InternalTypeLead, lead.ID); err != nil {
			result.Err = err
		}
	}

	return result
}

// PushLeadActivity pushes activity timelines for leads already linked
// to the vendor, paging links by last sync date in fixed size batches.
func (o *Orchestrator) PushLeadActivity(object string, aggregator *Aggregator,
	startDate, endDate time.Time) (*SyncStatus, error) {

	status := o.newStatus(object)
	logCtx := log.WithFields(log.Fields{"project_id": o.projectID,
		"integration": o.client.Name(), "object": object, "run_id": status.RunID})

	for offset := 0; ; offset += activityBatchSize {
		entities, errCode := o.store.GetIntegrationEntitiesByLastSync(o.projectID,
			o.client.Name(), object, model.InternalTypeLead,
			startDate, endDate, offset, activityBatchSize)
		if errCode == http.StatusNotFound {
			break
		}
		if errCode != http.StatusFound {
			err := errors.New("failed to page integration links")
			status.finish(err)
			return status, err
		}

		leadIDs := make([]uint64, 0, len(entities))
		for _, entity := range entities {
			leadIDs = append(leadIDs, entity.InternalID)
		}

		timelines, err := aggregator.Collect(o.projectID, leadIDs, startDate, endDate)
		if err != nil {
			status.finish(err)
			return status, err
		}

		for _, entity := range entities {
			timeline, exists := timelines[entity.InternalID]
			if !exists || len(timeline.Records) == 0 {
				status.Skipped++
				continue
			}

			err := o.client.CreateLeadActivity(integration.ActivityPayload{
				ExternalID: entity.ExternalID,
				LeadID:     entity.InternalID,
				LeadURL:    leadTimelineURL(entity.InternalID),
				Records:    timeline.Records,
			})
			if err != nil {
				logCtx.WithError(err).WithField("lead_id", entity.InternalID).
					Error("Failed to push lead activity.")
				status.Failures++
				continue
			}
			status.Updated++
		}

		if len(entities) < activityBatchSize {
			break
		}
	}

	status.finish(nil)
	logCtx.WithFields(log.Fields{"pushed": status.Updated,
		"skipped": status.Skipped, "failures": status.Failures}).
		Info("Completed activity push run.")

	return status, nil
}
