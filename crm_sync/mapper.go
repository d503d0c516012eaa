package crm_sync

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"crmbridge/integration"
	"crmbridge/model/model"
	U "crmbridge/util"
)

// Mapper translates between vendor field names and internal property
// names using the project's configured mapping.
type Mapper struct {
	settings model.FeatureSettings
}

func NewMapper(settings model.FeatureSettings) *Mapper {
	return &Mapper{settings: settings}
}

func (m *Mapper) mappingForObject(internalType, object string) map[string]string {
	if internalType == model.InternalTypeCompany {
		return m.settings.CompanyFieldsForObject(object)
	}
	return m.settings.LeadFieldsForObject(object)
}

// lookupPath resolves a dotted path like "type.name" inside a nested
// map shaped value.
func lookupPath(value interface{}, path string) interface{} {
	current := value
	for _, part := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = asMap[part]
	}
	return current
}

// FlattenRecord expands array valued vendor fields into plain scalar
// fields before mapping. Each array item contributes one field named
// by the item's name key, lowercased, holding the item's value key.
// The original array field is removed.
func FlattenRecord(record integration.Record, fields []model.FieldDefinition) integration.Record {
	for _, field := range fields {
		if field.Kind != model.FieldKindArray || field.ItemKeys == nil {
			continue
		}

		items, ok := record[field.Name].([]interface{})
		if !ok {
			continue
		}
		for _, rawItem := range items {
			name := U.GetPropertyValueAsString(lookupPath(rawItem, field.ItemKeys.Name))
			if name == "" {
				continue
			}
			record[strings.ToLower(name)] = lookupPath(rawItem, field.ItemKeys.Value)
		}
		delete(record, field.Name)
	}

	return record
}

// MapInbound turns a vendor record into internal properties. Array
// fields are flattened first, then each configured internal field is
// filled from its vendor counterpart. Vendor fields without a mapping
// are dropped, empty vendor values are skipped.
func (m *Mapper) MapInbound(internalType, object string, record integration.Record,
	fields []model.FieldDefinition) U.PropertiesMap {

	record = FlattenRecord(record, fields)
	mapping := m.mappingForObject(internalType, object)

	properties := make(U.PropertiesMap)
	for internalField, externalField := range mapping {
		value, exists := record[externalField]
		if !exists || U.IsEmptyValue(value) {
			continue
		}
		properties[internalField] = value
	}

	return properties
}

// MapOutbound turns internal properties into the vendor field map for
// a push. Returns ErrMappingEmpty when nothing maps, so callers skip
// the remote call instead of creating an empty record.
func (m *Mapper) MapOutbound(internalType, object string, properties U.PropertiesMap,
	fields []model.FieldDefinition) (map[string]interface{}, error) {

	mapping := m.mappingForObject(internalType, object)

	out := make(map[string]interface{})
	for internalField, externalField := range mapping {
		value, exists := properties[internalField]
		if !exists || U.IsEmptyValue(value) {
			continue
		}
		out[externalField] = value
	}

	if len(out) == 0 {
		return nil, model.ErrMappingEmpty
	}

	for _, field := range fields {
		if !field.Required || field.VendorObject != object {
			continue
		}
		if _, exists := out[field.Name]; !exists {
			log.WithFields(log.Fields{"object": object, "field": field.Name}).
				Warn("Push payload missing required vendor field.")
		}
	}

	return out, nil
}
