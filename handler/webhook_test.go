package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	C "crmbridge/config"
	"crmbridge/crm_sync"
	"crmbridge/integration"
	"crmbridge/model/model"
	U "crmbridge/util"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	if err != nil {
		os.Exit(1)
	}
	defer mr.Close()

	parts := strings.Split(mr.Addr(), ":")
	port, _ := strconv.Atoi(parts[1])
	C.InitRedisConnection(parts[0], port)

	os.Exit(m.Run())
}

// stubStore overrides only the store calls the webhook path touches.
type stubStore struct {
	model.Store
	savedLeads int
	links      int
}

func (s *stubStore) GetLeadByUniqueFields(projectID uint64,
	uniqueFieldData map[string]interface{}) (*model.Lead, int) {
	return nil, http.StatusNotFound
}

func (s *stubStore) SaveLead(projectID uint64, lead *model.Lead) int {
	s.savedLeads++
	lead.ID = uint64(s.savedLeads)
	return http.StatusAccepted
}

func (s *stubStore) GetCompanyByUniqueFields(projectID uint64,
	uniqueFieldData map[string]interface{}) (*model.Company, int) {
	return nil, http.StatusNotFound
}

func (s *stubStore) SaveCompany(projectID uint64, company *model.Company) int {
	s.savedLeads++
	company.ID = uint64(s.savedLeads)
	return http.StatusAccepted
}

func (s *stubStore) GetIntegrationEntityByExternalID(projectID uint64,
	integrationName, externalType, externalID string) (*model.IntegrationEntity, int) {
	return nil, http.StatusNotFound
}

func (s *stubStore) UpsertIntegrationEntity(projectID uint64,
	entity *model.IntegrationEntity) int {
	s.links++
	entity.ID = uint64(s.links)
	return http.StatusCreated
}

// stubClient serves one scripted record per id.
type stubClient struct {
	integration.CRMClient
	fetched []string
	failID  string
}

func (c *stubClient) Name() string { return U.CRM_NAME_SALESFORCE }

func (c *stubClient) GetLeadFields(object string) ([]model.FieldDefinition, error) {
	return nil, nil
}

func (c *stubClient) GetLeadByID(object, externalID string) (integration.Record, error) {
	if externalID == c.failID {
		return nil, &integration.APIError{Code: "404", Message: "not found"}
	}
	c.fetched = append(c.fetched, externalID)
	return integration.Record{"Id": externalID, "Email": externalID + "@example.com"}, nil
}

func newTestRouter(client *stubClient, store *stubStore) *gin.Engine {
	settings := model.FeatureSettings{
		LeadFields:             map[string]string{"email": "Email"},
		CompanyFields:          map[string]string{"companyname": "Name"},
		UniqueIdentifierFields: []string{"email"},
	}

	orchestratorBuilder = func(projectID uint64, integrationName string) (*crm_sync.Orchestrator, error) {
		return crm_sync.NewOrchestrator(projectID, client, store, settings), nil
	}

	r := gin.New()
	InitRoutes(r)
	return r
}

func TestIntegrationWebhookHandler(t *testing.T) {
	t.Run("AppliesContactEvents", func(t *testing.T) {
		client := &stubClient{}
		store := &stubStore{}
		router := newTestRouter(client, store)

		body := `[{"subscriptionType":"contact.creation","objectId":"ext-1","objectType":"Lead"},
			{"subscriptionType":"contact.update","objectId":"ext-2","objectType":"Lead"}]`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost,
			"/integrations/Salesforce/webhook?project_id=1", strings.NewReader(body))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OK", w.Body.String())
		assert.Equal(t, []string{"ext-1", "ext-2"}, client.fetched)
		assert.Equal(t, 2, store.links)
	})

	t.Run("EventFailureReportsError", func(t *testing.T) {
		client := &stubClient{failID: "ext-bad"}
		store := &stubStore{}
		router := newTestRouter(client, store)

		// One bad event does not stop the others from applying.
		body := `[{"subscriptionType":"contact.creation","objectId":"ext-bad","objectType":"Lead"},
			{"subscriptionType":"contact.creation","objectId":"ext-ok","objectType":"Lead"}]`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost,
			"/integrations/Salesforce/webhook?project_id=1", strings.NewReader(body))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "ERROR", w.Body.String())
		assert.Equal(t, []string{"ext-ok"}, client.fetched)
	})

	t.Run("MissingProjectIDRejected", func(t *testing.T) {
		router := newTestRouter(&stubClient{}, &stubStore{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost,
			"/integrations/Salesforce/webhook", strings.NewReader(`[]`))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("MalformedBodyRejected", func(t *testing.T) {
		router := newTestRouter(&stubClient{}, &stubStore{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost,
			"/integrations/Salesforce/webhook?project_id=1", strings.NewReader(`{not json`))
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIntegrationStatusHandler(t *testing.T) {
	router := newTestRouter(&stubClient{}, &stubStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/integrations/status", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "integrations")
}
