package model

// FieldKind - Normalized field type across CRM vendors.
type FieldKind string

const (
	FieldKindString  FieldKind = "string"
	FieldKindBoolean FieldKind = "boolean"
	FieldKindNumeric FieldKind = "numeric"
	FieldKindArray   FieldKind = "array"
)

// FieldItemKeys - For array kind fields, the keys used to flatten
// each item into a name/value pair. The name key may resolve to a
// nested object carrying a "name" entry.
type FieldItemKeys struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FieldDefinition - One mappable field as exposed by the remote CRM.
// Recomputed per fetch unless cached; never persisted.
type FieldDefinition struct {
	Name         string         `json:"name"`
	Label        string         `json:"label"`
	Kind         FieldKind      `json:"kind"`
	Required     bool           `json:"required"`
	VendorObject string         `json:"vendor_object"`
	ItemKeys     *FieldItemKeys `json:"item_keys,omitempty"`
}
