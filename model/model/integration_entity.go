package model

import (
	"time"
)

// Internal object types tracked by integration entities.
const (
	InternalTypeLead    = "lead"
	InternalTypeCompany = "company"
)

// IntegrationEntity - Durable correspondence between one external
// vendor record and one internal record. At most one row per
// (project, integration, external_type, external_id); created on
// first successful reconciliation, last_sync_date bumped on every
// later sync, never deleted by the core.
type IntegrationEntity struct {
	ID           uint64    `gorm:"primary_key:true" json:"id"`
	ProjectID    uint64    `gorm:"auto_increment:false;not null" json:"project_id"`
	Integration  string    `gorm:"not null" json:"integration"`
	ExternalType string    `gorm:"not null" json:"external_type"`
	ExternalID   string    `gorm:"not null" json:"external_id"`
	InternalType string    `gorm:"not null" json:"internal_type"`
	InternalID   uint64    `gorm:"auto_increment:false;not null" json:"internal_id"`
	LastSyncDate time.Time `json:"last_sync_date"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
