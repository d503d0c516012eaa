package integration

import (
	"fmt"
	"sync"
	"time"

	"crmbridge/model/model"
)

// Record is a single remote object as returned by a vendor API,
// keyed by the vendor's field api names.
type Record map[string]interface{}

type Credentials struct {
	APIKey       string `json:"api_key"`
	APISecret    string `json:"api_secret"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	InstanceURL  string `json:"instance_url"`
	AppID        string `json:"app_id"`
}

// FetchQuery carries the date window and the opaque pagination cursor
// for a pull. Vendors that page by offset pairs encode them into Cursor.
type FetchQuery struct {
	StartDate time.Time
	EndDate   time.Time
	Cursor    string
	Params    map[string]string
}

type Page struct {
	Records    []Record
	TotalSize  int
	HasMore    bool
	NextCursor string
}

// ActivityPayload is the per-lead activity timeline pushed to vendors
// that accept engagement events.
type ActivityPayload struct {
	ExternalID string
	LeadID     uint64
	LeadURL    string
	Records    []model.ActivityEntry
}

type SyncParams struct {
	ProjectID uint64
	Object    string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// CRMClient is the vendor facing surface. Every vendor package
// implements it and registers a factory on init.
type CRMClient interface {
	Name() string
	IsAuthorized() (bool, error)
	GetLeadFields(object string) ([]model.FieldDefinition, error)
	GetLeads(object string, query FetchQuery) (*Page, error)
	GetLeadByID(object, externalID string) (Record, error)
	CreateLead(object string, fields map[string]interface{}) (string, error)
	CreateLeadActivity(payload ActivityPayload) error
}

// LeadUpdater is implemented by clients that can update an already
// linked remote record in place instead of creating a new one.
type LeadUpdater interface {
	UpdateLead(object, externalID string, fields map[string]interface{}) error
}

// FetchQueryBuilder lets a vendor rewrite the pull query before the
// first page is requested. Vendors that only honor the default window
// skip implementing it.
type FetchQueryBuilder interface {
	BuildFetchQuery(object string, query FetchQuery) FetchQuery
}

// PushAmender lets a vendor adjust the outbound field map right before
// create, after mapping has run.
type PushAmender interface {
	AmendPush(object string, fields map[string]interface{}) map[string]interface{}
}

// PopulateAmender lets a vendor adjust an inbound record before field
// mapping, for shapes the generic mapper cannot express.
type PopulateAmender interface {
	AmendPopulate(object string, record Record) Record
}

// OrganizationDater reports the remote org's creation date, used to
// clamp pull windows so the first sync does not ask for data older
// than the account itself.
type OrganizationDater interface {
	GetOrganizationCreatedDate() (time.Time, error)
}

// ClientFactory builds a vendor client for one project from its stored
// credentials and feature settings.
type ClientFactory func(projectID uint64, creds Credentials,
	settings model.FeatureSettings) (CRMClient, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ClientFactory)
)

// Register makes a vendor client available by integration name. Vendor
// packages call it from init, like database/sql drivers.
func Register(name string, factory ClientFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("integration: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("integration: Register called twice for " + name)
	}
	factories[name] = factory
}

func NewClient(name string, projectID uint64, creds Credentials,
	settings model.FeatureSettings) (CRMClient, error) {

	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("integration: unknown integration %q", name)
	}

	return factory(projectID, creds, settings)
}

func RegisteredIntegrations() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
