package crm_sync

import (
	"fmt"
	"net/http"
	"time"

	"crmbridge/integration"
	"crmbridge/model/model"
	U "crmbridge/util"
)

// fakeStore is an in-memory model.Store for engine tests.
type fakeStore struct {
	leads     map[uint64]*model.Lead
	companies map[uint64]*model.Company
	users     map[string]*model.User
	entities  map[string]*model.IntegrationEntity
	settings  map[string]*model.IntegrationSetting

	pointChanges []model.PointChangeLog
	emailStats   []model.EmailStat
	formSubs     []model.FormSubmission

	nextID    uint64
	saveCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:     make(map[uint64]*model.Lead),
		companies: make(map[uint64]*model.Company),
		users:     make(map[string]*model.User),
		entities:  make(map[string]*model.IntegrationEntity),
		settings:  make(map[string]*model.IntegrationSetting),
	}
}

func (s *fakeStore) GetLeadByUniqueFields(projectID uint64,
	uniqueFieldData map[string]interface{}) (*model.Lead, int) {

	for _, lead := range s.leads {
		props, _ := U.DecodePostgresJsonb(lead.Properties)
		for field, value := range uniqueFieldData {
			if U.GetPropertyValueAsString((*props)[field]) == U.GetPropertyValueAsString(value) {
				copied := *lead
				copied.NewlyCreated = false
				return &copied, http.StatusFound
			}
		}
	}
	return nil, http.StatusNotFound
}

func (s *fakeStore) SaveLead(projectID uint64, lead *model.Lead) int {
	s.saveCalls++
	if lead.ID == 0 {
		s.nextID++
		lead.ID = s.nextID
	}
	copied := *lead
	s.leads[lead.ID] = &copied
	return http.StatusAccepted
}

func (s *fakeStore) GetCompanyByUniqueFields(projectID uint64,
	uniqueFieldData map[string]interface{}) (*model.Company, int) {

	for _, company := range s.companies {
		props, _ := U.DecodePostgresJsonb(company.Properties)
		for field, value := range uniqueFieldData {
			if U.GetPropertyValueAsString((*props)[field]) == U.GetPropertyValueAsString(value) {
				copied := *company
				copied.NewlyCreated = false
				return &copied, http.StatusFound
			}
		}
	}
	return nil, http.StatusNotFound
}

func (s *fakeStore) SaveCompany(projectID uint64, company *model.Company) int {
	s.saveCalls++
	if company.ID == 0 {
		s.nextID++
		company.ID = s.nextID
	}
	copied := *company
	s.companies[company.ID] = &copied
	return http.StatusAccepted
}

func (s *fakeStore) GetUserByEmail(projectID uint64, email string) (*model.User, int) {
	if user, exists := s.users[email]; exists {
		return user, http.StatusFound
	}
	return nil, http.StatusNotFound
}

func entityKey(integrationName, externalType, externalID string) string {
	return fmt.Sprintf("%s:%s:%s", integrationName, externalType, externalID)
}

func (s *fakeStore) GetIntegrationEntityByExternalID(projectID uint64,
	integrationName, externalType, externalID string) (*model.IntegrationEntity, int) {

	if entity, exists := s.entities[entityKey(integrationName, externalType, externalID)]; exists {
		return entity, http.StatusFound
	}
	return nil, http.StatusNotFound
}

func (s *fakeStore) GetIntegrationEntityByInternalID(projectID uint64,
	integrationName, externalType, internalType string, internalID uint64) (*model.IntegrationEntity, int) {

	for _, entity := range s.entities {
		if entity.Integration == integrationName && entity.ExternalType == externalType &&
			entity.InternalType == internalType && entity.InternalID == internalID {
			return entity, http.StatusFound
		}
	}
	return nil, http.StatusNotFound
}

func (s *fakeStore) UpsertIntegrationEntity(projectID uint64, entity *model.IntegrationEntity) int {
	key := entityKey(entity.Integration, entity.ExternalType, entity.ExternalID)
	if existing, exists := s.entities[key]; exists {
		existing.LastSyncDate = time.Now().UTC()
		entity.ID = existing.ID
		return http.StatusAccepted
	}

	s.nextID++
	entity.ID = s.nextID
	entity.LastSyncDate = time.Now().UTC()
	copied := *entity
	s.entities[key] = &copied
	return http.StatusCreated
}

func (s *fakeStore) GetIntegrationEntitiesByLastSync(projectID uint64,
	integrationName, externalType, internalType string,
	startDate, endDate time.Time, offset, limit int) ([]model.IntegrationEntity, int) {

	var matched []model.IntegrationEntity
	for _, entity := range s.entities {
		if entity.Integration == integrationName && entity.ExternalType == externalType &&
			entity.InternalType == internalType {
			matched = append(matched, *entity)
		}
	}
	if offset >= len(matched) {
		return nil, http.StatusNotFound
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], http.StatusFound
}

func (s *fakeStore) GetIntegrationSetting(projectID uint64, name string) (*model.IntegrationSetting, int) {
	if setting, exists := s.settings[name]; exists {
		return setting, http.StatusFound
	}
	return nil, http.StatusNotFound
}

func (s *fakeStore) SaveIntegrationSetting(projectID uint64, setting *model.IntegrationSetting) int {
	s.settings[setting.Name] = setting
	return http.StatusAccepted
}

func (s *fakeStore) GetEnabledIntegrationSettings(name string) ([]model.IntegrationSetting, int) {
	if setting, exists := s.settings[name]; exists && setting.Enabled {
		return []model.IntegrationSetting{*setting}, http.StatusFound
	}
	return nil, http.StatusNotFound
}

func (s *fakeStore) GetPointChangesByLeadIDs(projectID uint64, leadIDs []uint64,
	startDate, endDate time.Time) ([]model.PointChangeLog, int) {

	if len(s.pointChanges) == 0 {
		return nil, http.StatusNotFound
	}
	return s.pointChanges, http.StatusFound
}

func (s *fakeStore) GetEmailStatsByLeadIDs(projectID uint64, leadIDs []uint64,
	startDate, endDate time.Time) ([]model.EmailStat, int) {

	if len(s.emailStats) == 0 {
		return nil, http.StatusNotFound
	}
	return s.emailStats, http.StatusFound
}

func (s *fakeStore) GetFormSubmissionsByLeadIDs(projectID uint64, leadIDs []uint64,
	startDate, endDate time.Time) ([]model.FormSubmission, int) {

	if len(s.formSubs) == 0 {
		return nil, http.StatusNotFound
	}
	return s.formSubs, http.StatusFound
}

// fakeClient is a scripted integration.CRMClient.
type fakeClient struct {
	name   string
	pages  []integration.Page
	fields []model.FieldDefinition

	fetchCalls    int
	created       []map[string]interface{}
	updated       map[string]map[string]interface{}
	activityCalls []integration.ActivityPayload
	createID      string
	createErr     error
	updateErr     error
	authorized    bool
}

func newFakeClient(name string) *fakeClient {
	return &fakeClient{name: name, authorized: true, createID: "ext-created"}
}

func (c *fakeClient) Name() string { return c.name }

func (c *fakeClient) IsAuthorized() (bool, error) { return c.authorized, nil }

func (c *fakeClient) GetLeadFields(object string) ([]model.FieldDefinition, error) {
	return c.fields, nil
}

func (c *fakeClient) GetLeads(object string, query integration.FetchQuery) (*integration.Page, error) {
	if c.fetchCalls >= len(c.pages) {
		return &integration.Page{}, nil
	}
	page := c.pages[c.fetchCalls]
	c.fetchCalls++
	return &page, nil
}

func (c *fakeClient) GetLeadByID(object, externalID string) (integration.Record, error) {
	return integration.Record{"Id": externalID, "Email": externalID + "@example.com"}, nil
}

func (c *fakeClient) CreateLead(object string, fields map[string]interface{}) (string, error) {
	if c.createErr != nil {
		return "", c.createErr
	}
	c.created = append(c.created, fields)
	return c.createID, nil
}

func (c *fakeClient) UpdateLead(object, externalID string, fields map[string]interface{}) error {
	if c.updateErr != nil {
		return c.updateErr
	}
	if c.updated == nil {
		c.updated = make(map[string]map[string]interface{})
	}
	c.updated[externalID] = fields
	return nil
}

func (c *fakeClient) CreateLeadActivity(payload integration.ActivityPayload) error {
	c.activityCalls = append(c.activityCalls, payload)
	return nil
}

// createOnlyClient hides the update capability so the fallback push
// path can be exercised.
type createOnlyClient struct {
	integration.CRMClient
}

func leadProperties(lead *model.Lead) map[string]interface{} {
	props, _ := U.DecodePostgresJsonb(lead.Properties)
	return *props
}

func encodeProperties(props map[string]interface{}) *model.Lead {
	encoded, _ := U.EncodeToPostgresJsonb(&props)
	return &model.Lead{Properties: encoded}
}
