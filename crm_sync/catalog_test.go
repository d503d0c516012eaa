package crm_sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"crmbridge/model/model"
	U "crmbridge/util"
)

func TestFieldCatalog(t *testing.T) {
	client := newFakeClient(U.CRM_NAME_SALESFORCE)
	client.fields = []model.FieldDefinition{
		{Name: "Email", Label: "Email", Kind: model.FieldKindString, VendorObject: "Lead"},
	}
	catalog := NewFieldCatalog(client)

	t.Run("CachesVendorMetadata", func(t *testing.T) {
		fields, err := catalog.ListFields(21, "Lead")
		assert.Nil(t, err)
		assert.Len(t, fields, 1)

		// Second read comes from cache even after the vendor metadata
		// changes.
		client.fields = nil
		fields, err = catalog.ListFields(21, "Lead")
		assert.Nil(t, err)
		assert.Len(t, fields, 1)
		assert.Equal(t, "Email", fields[0].Name)
	})

	t.Run("InvalidateForcesRefetch", func(t *testing.T) {
		client.fields = []model.FieldDefinition{
			{Name: "Email", VendorObject: "Lead"},
			{Name: "Phone", VendorObject: "Lead"},
		}

		assert.Nil(t, catalog.Invalidate(21, "Lead"))

		fields, err := catalog.ListFields(21, "Lead")
		assert.Nil(t, err)
		assert.Len(t, fields, 2)
	})

	t.Run("CacheScopedPerProject", func(t *testing.T) {
		client.fields = []model.FieldDefinition{{Name: "City", VendorObject: "Lead"}}

		fields, err := catalog.ListFields(22, "Lead")
		assert.Nil(t, err)
		assert.Len(t, fields, 1)
		assert.Equal(t, "City", fields[0].Name)
	})
}
