package model

import (
	"time"

	"github.com/jinzhu/gorm/dialects/postgres"
)

// Lead - The host system's normalized contact record. The core reads
// and writes field values, owner and social cache; storage lifecycle
// belongs to the host.
type Lead struct {
	ID        uint64 `gorm:"primary_key:true" json:"id"`
	ProjectID uint64 `gorm:"auto_increment:false;not null" json:"project_id"`
	// Properties - Normalized internal field values.
	Properties *postgres.Jsonb `json:"properties"`
	// SocialCache - Per integration namespace of vendor supplied
	// profile data. Merged additively across vendors.
	SocialCache *postgres.Jsonb `json:"social_cache"`
	OwnerID     uint64          `gorm:"default:null" json:"owner_id"`
	// NewlyCreated - Set on instantiation during reconciliation,
	// never persisted.
	NewlyCreated bool      `gorm:"-" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Company - The host system's normalized organization record.
type Company struct {
	ID           uint64          `gorm:"primary_key:true" json:"id"`
	ProjectID    uint64          `gorm:"auto_increment:false;not null" json:"project_id"`
	Properties   *postgres.Jsonb `json:"properties"`
	OwnerID      uint64          `gorm:"default:null" json:"owner_id"`
	NewlyCreated bool            `gorm:"-" json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// User - Host user referenced as lead owner. Resolved by email on
// inbound sync when owner update is enabled.
type User struct {
	ID        uint64    `gorm:"primary_key:true" json:"id"`
	ProjectID uint64    `gorm:"auto_increment:false;not null" json:"project_id"`
	Email     string    `gorm:"not null" json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
