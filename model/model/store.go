package model

import (
	"time"
)

// Store - Host persistence operations used by the sync engine.
// Implementations return net/http status codes alongside values,
// i.e StatusFound on hit, StatusNotFound on miss.
type Store interface {
	// Leads and companies.
	GetLeadByUniqueFields(projectID uint64, uniqueFieldData map[string]interface{}) (*Lead, int)
	SaveLead(projectID uint64, lead *Lead) int
	GetCompanyByUniqueFields(projectID uint64, uniqueFieldData map[string]interface{}) (*Company, int)
	SaveCompany(projectID uint64, company *Company) int
	GetUserByEmail(projectID uint64, email string) (*User, int)

	// Integration entity links.
	GetIntegrationEntityByExternalID(projectID uint64, integration,
		externalType, externalID string) (*IntegrationEntity, int)
	GetIntegrationEntityByInternalID(projectID uint64, integration,
		externalType, internalType string, internalID uint64) (*IntegrationEntity, int)
	UpsertIntegrationEntity(projectID uint64, entity *IntegrationEntity) int
	GetIntegrationEntitiesByLastSync(projectID uint64, integration, externalType,
		internalType string, startDate, endDate time.Time, offset, limit int) ([]IntegrationEntity, int)

	// Integration configuration.
	GetIntegrationSetting(projectID uint64, name string) (*IntegrationSetting, int)
	SaveIntegrationSetting(projectID uint64, setting *IntegrationSetting) int
	GetEnabledIntegrationSettings(name string) ([]IntegrationSetting, int)

	// Activity sources.
	GetPointChangesByLeadIDs(projectID uint64, leadIDs []uint64, startDate, endDate time.Time) ([]PointChangeLog, int)
	GetEmailStatsByLeadIDs(projectID uint64, leadIDs []uint64, startDate, endDate time.Time) ([]EmailStat, int)
	GetFormSubmissionsByLeadIDs(projectID uint64, leadIDs []uint64, startDate, endDate time.Time) ([]FormSubmission, int)
}
