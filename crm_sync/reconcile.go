package crm_sync

import (
	"encoding/json"
	"net/http"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"crmbridge/integration"
	"crmbridge/model/model"
	U "crmbridge/util"
)

const (
	propertyOwnerEmail     = "owner_email"
	propertyCompanyName    = "companyname"
	propertyCompanyWebsite = "companywebsite"
)

// Reconciler folds inbound vendor records into internal records:
// identity resolution, additive merge, owner assignment and the
// integration link. One instance per sync run.
type Reconciler struct {
	store       model.Store
	mapper      *Mapper
	settings    model.FeatureSettings
	integration string
}

func NewReconciler(store model.Store, settings model.FeatureSettings,
	integrationName string) *Reconciler {

	return &Reconciler{
		store:       store,
		mapper:      NewMapper(settings),
		settings:    settings,
		integration: integrationName,
	}
}

// uniqueFields restricts properties to the configured unique
// identifier fields with non empty values.
func (r *Reconciler) uniqueFields(properties U.PropertiesMap) map[string]interface{} {
	unique := make(map[string]interface{})
	for _, field := range r.settings.UniqueIdentifierFields {
		if value, exists := properties[field]; exists && !U.IsEmptyValue(value) {
			unique[field] = value
		}
	}

	return unique
}

// mergeProperties folds incoming values over the existing ones.
// Incoming values win per key, existing keys absent from the incoming
// set survive untouched.
func mergeProperties(existing, incoming map[string]interface{}) (map[string]interface{}, bool) {
	merged := make(map[string]interface{}, len(existing))
	if err := mergo.Merge(&merged, existing); err != nil {
		log.WithError(err).Error("Failed to copy existing properties on merge.")
		return existing, false
	}

	changed := false
	for key, value := range incoming {
		if U.GetPropertyValueAsString(merged[key]) != U.GetPropertyValueAsString(value) {
			changed = true
		}
		merged[key] = value
	}

	return merged, changed
}

// jsonEqual compares two maps by their encoded form, so values that
// only differ in Go type after a JSON round trip still match.
func jsonEqual(a, b map[string]interface{}) bool {
	aBytes, errA := json.Marshal(a)
	bBytes, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aBytes) == string(bBytes)
}

// resolveOwner fills the lead owner from the mapped owner email, only
// when the project opted into owner updates. Unknown emails leave the
// owner untouched.
func (r *Reconciler) resolveOwner(projectID uint64, properties U.PropertiesMap) (uint64, bool) {
	if !r.settings.UpdateOwner {
		return 0, false
	}

	email := U.GetPropertyValueAsString(properties[propertyOwnerEmail])
	if email == "" {
		return 0, false
	}

	user, errCode := r.store.GetUserByEmail(projectID, email)
	if errCode != http.StatusFound {
		log.WithFields(log.Fields{"project_id": projectID, "email": email}).
			Warn("Owner email did not resolve to a user.")
		return 0, false
	}

	return user.ID, true
}

// ResolveLead folds one inbound vendor record into a lead. Records
// without any usable unique identifier are dropped with
// ErrIdentityUnresolved. Returns the lead and whether it was persisted
// on this call; an unchanged existing lead is not rewritten.
func (r *Reconciler) ResolveLead(projectID uint64, object string,
	record integration.Record, fields []model.FieldDefinition,
	externalID string) (*model.Lead, bool, error) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID,
		"integration": r.integration, "object": object, "external_id": externalID})

	properties := r.mapper.MapInbound(model.InternalTypeLead, object, record, fields)

	unique := r.uniqueFields(properties)
	if len(unique) == 0 {
		return nil, false, model.ErrIdentityUnresolved
	}

	lead, errCode := r.store.GetLeadByUniqueFields(projectID, unique)
	if errCode == http.StatusInternalServerError || errCode == http.StatusBadRequest {
		return nil, false, errors.New("lead lookup failed")
	}

	persist := false
	if errCode == http.StatusNotFound {
		lead = &model.Lead{ProjectID: projectID, NewlyCreated: true}
		persist = true
	}

	existingProps := map[string]interface{}{}
	if !lead.NewlyCreated {
		decoded, err := U.DecodePostgresJsonb(lead.Properties)
		if err != nil {
			logCtx.WithError(err).Error("Failed to decode existing lead properties.")
			return nil, false, err
		}
		existingProps = *decoded
	}

	merged, changed := mergeProperties(existingProps, properties)
	if changed {
		persist = true
	}

	if ownerID, ok := r.resolveOwner(projectID, properties); ok && ownerID != lead.OwnerID {
		lead.OwnerID = ownerID
		persist = true
	}

	if socialChanged := r.mergeSocialCache(lead, record); socialChanged {
		persist = true
	}

	if persist {
		encoded, err := U.EncodeToPostgresJsonb(&merged)
		if err != nil {
			logCtx.WithError(err).Error("Failed to encode lead properties.")
			return nil, false, err
		}
		lead.Properties = encoded

		if errCode := r.store.SaveLead(projectID, lead); errCode != http.StatusAccepted {
			return nil, false, errors.New("lead save failed")
		}
	}

	if err := r.UpsertLink(projectID, object, externalID, model.InternalTypeLead, lead.ID); err != nil {
		return nil, false, err
	}

	return lead, persist, nil
}

// mergeSocialCache stores the raw vendor record under the
// integration's namespace without disturbing other vendors' entries.
func (r *Reconciler) mergeSocialCache(lead *model.Lead, record integration.Record) bool {
	if len(record) == 0 {
		return false
	}

	cache, err := U.DecodePostgresJsonb(lead.SocialCache)
	if err != nil {
		log.WithError(err).Error("Failed to decode lead social cache.")
		return false
	}

	existing, _ := (*cache)[r.integration].(map[string]interface{})
	merged := make(map[string]interface{}, len(existing)+len(record))
	if err := mergo.Merge(&merged, existing); err != nil {
		log.WithError(err).Error("Failed to copy social cache entry on merge.")
		return false
	}
	for key, value := range record {
		merged[key] = value
	}
	if jsonEqual(existing, merged) {
		return false
	}
	(*cache)[r.integration] = merged

	encoded, err := U.EncodeToPostgresJsonb(cache)
	if err != nil {
		log.WithError(err).Error("Failed to encode lead social cache.")
		return false
	}
	lead.SocialCache = encoded

	return true
}

// ResolveCompany folds one inbound vendor record into a company. A
// company with no name inherits its website as the name before the
// identity check, mirroring how hosts display such records.
func (r *Reconciler) ResolveCompany(projectID uint64, object string,
	record integration.Record, fields []model.FieldDefinition,
	externalID string) (*model.Company, bool, error) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID,
		"integration": r.integration, "object": object, "external_id": externalID})

	properties := r.mapper.MapInbound(model.InternalTypeCompany, object, record, fields)

	if U.IsEmptyValue(properties[propertyCompanyName]) &&
		!U.IsEmptyValue(properties[propertyCompanyWebsite]) {
		properties[propertyCompanyName] = properties[propertyCompanyWebsite]
	}

	if U.IsEmptyValue(properties[propertyCompanyName]) {
		return nil, false, model.ErrIdentityUnresolved
	}

	company, errCode := r.store.GetCompanyByUniqueFields(projectID,
		map[string]interface{}{propertyCompanyName: properties[propertyCompanyName]})
	if errCode == http.StatusInternalServerError || errCode == http.StatusBadRequest {
		return nil, false, errors.New("company lookup failed")
	}

	persist := false
	if errCode == http.StatusNotFound {
		company = &model.Company{ProjectID: projectID, NewlyCreated: true}
		persist = true
	}

	existingProps := map[string]interface{}{}
	if !company.NewlyCreated {
		decoded, err := U.DecodePostgresJsonb(company.Properties)
		if err != nil {
			logCtx.WithError(err).Error("Failed to decode existing company properties.")
			return nil, false, err
		}
		existingProps = *decoded
	}

	merged, changed := mergeProperties(existingProps, properties)
	if changed {
		persist = true
	}

	if persist {
		encoded, err := U.EncodeToPostgresJsonb(&merged)
		if err != nil {
			logCtx.WithError(err).Error("Failed to encode company properties.")
			return nil, false, err
		}
		company.Properties = encoded

		if errCode := r.store.SaveCompany(projectID, company); errCode != http.StatusAccepted {
			return nil, false, errors.New("company save failed")
		}
	}

	if err := r.UpsertLink(projectID, object, externalID, model.InternalTypeCompany, company.ID); err != nil {
		return nil, false, err
	}

	return company, persist, nil
}

// UpsertLink records the external to internal identity link, bumping
// the last sync date when the link already exists.
func (r *Reconciler) UpsertLink(projectID uint64, externalType, externalID,
	internalType string, internalID uint64) error {

	entity := &model.IntegrationEntity{
		ProjectID:    projectID,
		Integration:  r.integration,
		ExternalType: externalType,
		ExternalID:   externalID,
		InternalType: internalType,
		InternalID:   internalID,
	}

	errCode := r.store.UpsertIntegrationEntity(projectID, entity)
	if errCode != http.StatusCreated && errCode != http.StatusAccepted {
		return errors.New("integration link upsert failed")
	}

	return nil
}
