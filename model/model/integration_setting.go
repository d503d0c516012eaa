package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jinzhu/gorm/dialects/postgres"
)

// FeatureSettings - Per integration configuration blob: field
// mappings, enabled objects and sync options. Loaded once per sync
// run and read-only during the run.
type FeatureSettings struct {
	// LeadFields - internal field -> external field. Keys of the
	// external side may carry a "__<Object>" compound suffix when
	// the same internal field maps differently per vendor object.
	LeadFields    map[string]string `json:"lead_fields"`
	CompanyFields map[string]string `json:"company_fields"`
	// UniqueIdentifierFields - internal fields sufficient, when
	// non-empty, to match an inbound record to an existing one.
	UniqueIdentifierFields []string `json:"unique_identifier_fields"`
	Objects                []string `json:"objects"`
	UpdateOwner            bool     `json:"update_owner"`
}

const objectKeySeparator = "__"

// LeadFieldsForObject - Returns the lead mapping scoped to one vendor
// object. Compound "external__Object" keys are kept only for the given
// object and returned with the suffix stripped. Plain keys apply to
// every object.
func (fs *FeatureSettings) LeadFieldsForObject(object string) map[string]string {
	return fieldsForObject(fs.LeadFields, object)
}

// CompanyFieldsForObject - Same scoping for the company mapping.
func (fs *FeatureSettings) CompanyFieldsForObject(object string) map[string]string {
	return fieldsForObject(fs.CompanyFields, object)
}

func fieldsForObject(mapping map[string]string, object string) map[string]string {
	fields := make(map[string]string)
	for internalField, externalField := range mapping {
		if !strings.Contains(externalField, objectKeySeparator) {
			fields[internalField] = externalField
			continue
		}

		if strings.HasSuffix(externalField, objectKeySeparator+object) {
			fields[internalField] = strings.TrimSuffix(externalField, objectKeySeparator+object)
		}
	}

	return fields
}

func (fs *FeatureSettings) IsUniqueIdentifierField(field string) bool {
	for _, f := range fs.UniqueIdentifierFields {
		if f == field {
			return true
		}
	}
	return false
}

// IntegrationSetting - One row per (project, integration). Credentials
// are stored by the host; the core only reads them.
type IntegrationSetting struct {
	ProjectID       uint64          `gorm:"primary_key:true;auto_increment:false" json:"project_id"`
	Name            string          `gorm:"primary_key:true" json:"name"`
	Enabled         bool            `gorm:"default:false" json:"enabled"`
	FeatureSettings *postgres.Jsonb `json:"feature_settings"`
	Credentials     *postgres.Jsonb `json:"credentials"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (setting *IntegrationSetting) GetFeatureSettings() (*FeatureSettings, error) {
	var fs FeatureSettings
	if setting.FeatureSettings == nil {
		return &fs, nil
	}

	err := json.Unmarshal(setting.FeatureSettings.RawMessage, &fs)
	if err != nil {
		return nil, err
	}

	return &fs, nil
}
