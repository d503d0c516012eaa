package connectwise

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"crmbridge/integration"
	"crmbridge/model/model"
)

func testClient(instanceURL string) *Client {
	return &Client{
		projectID:   1,
		publicKey:   "pub",
		privateKey:  "priv",
		appID:       "app-1",
		instanceURL: instanceURL,
	}
}

func TestAuthHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("pub:priv"))
		assert.Equal(t, expected, r.Header.Get("Authorization"))
		assert.Equal(t, "app-1", r.Header.Get("clientId"))
		fmt.Fprint(w, `{"version":"v2024.1"}`)
	}))
	defer server.Close()

	authorized, err := testClient(server.URL).IsAuthorized()
	assert.Nil(t, err)
	assert.True(t, authorized)
}

func TestGetLeadFields(t *testing.T) {
	client := testClient("")

	t.Run("ContactCarriesCommunicationItems", func(t *testing.T) {
		fields, err := client.GetLeadFields(ObjectContact)
		assert.Nil(t, err)

		var commItems *model.FieldDefinition
		for i := range fields {
			if fields[i].Name == "communicationItems" {
				commItems = &fields[i]
			}
		}
		assert.NotNil(t, commItems)
		assert.Equal(t, model.FieldKindArray, commItems.Kind)
		assert.Equal(t, "type.name", commItems.ItemKeys.Name)
		assert.Equal(t, "value", commItems.ItemKeys.Value)
	})

	t.Run("UnknownObjectRejected", func(t *testing.T) {
		_, err := client.GetLeadFields("ticket")
		assert.NotNil(t, err)
	})
}

func TestDecodeCursor(t *testing.T) {
	vid, offset := decodeCursor("250:1714550400000")
	assert.Equal(t, 250, vid)
	assert.Equal(t, int64(1714550400000), offset)

	vid, offset = decodeCursor("")
	assert.Equal(t, 0, vid)
	assert.Equal(t, int64(0), offset)
}

func TestGetLeadsPagination(t *testing.T) {
	t.Run("FullPageEmitsOffsetCursor", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var page strings.Builder
			page.WriteString("[")
			for i := 1; i <= fetchPageLimit; i++ {
				if i > 1 {
					page.WriteString(",")
				}
				fmt.Fprintf(&page, `{"id":%d,"_info":{"lastUpdatedMilli":%d}}`, i, 1714550400000+int64(i))
			}
			page.WriteString("]")
			fmt.Fprint(w, page.String())
		}))
		defer server.Close()

		page, err := testClient(server.URL).GetLeads(ObjectContact, integration.FetchQuery{})
		assert.Nil(t, err)
		assert.True(t, page.HasMore)
		assert.Equal(t, fmt.Sprintf("%d:%d", fetchPageLimit, 1714550400000+int64(fetchPageLimit)), page.NextCursor)
	})

	t.Run("PartialPageEndsPagination", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"id":7,"_info":{"lastUpdatedMilli":1714550400500}}]`)
		}))
		defer server.Close()

		page, err := testClient(server.URL).GetLeads(ObjectContact, integration.FetchQuery{})
		assert.Nil(t, err)
		assert.False(t, page.HasMore)
		assert.Empty(t, page.NextCursor)
	})

	t.Run("EnvelopeShapeHonored", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"records":[{"id":1}],"has-more":true,"vid-offset":17,"time-offset":1714550401000}`)
		}))
		defer server.Close()

		page, err := testClient(server.URL).GetLeads(ObjectContact, integration.FetchQuery{})
		assert.Nil(t, err)
		assert.True(t, page.HasMore)
		assert.Equal(t, "17:1714550401000", page.NextCursor)
		assert.Len(t, page.Records, 1)
	})

	t.Run("CursorDrivesConditions", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conditions := r.URL.Query().Get("conditions")
			assert.Contains(t, conditions, "lastUpdated >= [1714550401000]")
			assert.Contains(t, conditions, "id > 17")
			fmt.Fprint(w, `[]`)
		}))
		defer server.Close()

		_, err := testClient(server.URL).GetLeads(ObjectContact,
			integration.FetchQuery{Cursor: "17:1714550401000"})
		assert.Nil(t, err)
	})
}

func TestAmendPopulateEmailFallback(t *testing.T) {
	client := testClient("")

	t.Run("ProfileEmailFillsMissingEmail", func(t *testing.T) {
		record := integration.Record{
			"firstName": "Ada",
			"identity-profiles": []interface{}{
				map[string]interface{}{
					"identities": []interface{}{
						map[string]interface{}{"type": "LEAD_GUID", "value": "xyz"},
						map[string]interface{}{"type": "EMAIL", "value": "ada@example.com"},
					},
				},
			},
		}

		amended := client.AmendPopulate(ObjectContact, record)
		assert.Equal(t, "ada@example.com", amended["email"])
	})

	t.Run("ExistingEmailUntouched", func(t *testing.T) {
		record := integration.Record{
			"email": "keep@example.com",
			"identity-profiles": []interface{}{
				map[string]interface{}{
					"identities": []interface{}{
						map[string]interface{}{"type": "EMAIL", "value": "other@example.com"},
					},
				},
			},
		}

		amended := client.AmendPopulate(ObjectContact, record)
		assert.Equal(t, "keep@example.com", amended["email"])
	})

	t.Run("CompanyRecordsPassThrough", func(t *testing.T) {
		record := integration.Record{"name": "Acme"}
		amended := client.AmendPopulate(ObjectCompany, record)
		assert.Equal(t, record, amended)
	})
}

func TestCreateLead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4_6_release/apis/3.0/company/contacts", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":321,"firstName":"Ada"}`)
	}))
	defer server.Close()

	id, err := testClient(server.URL).CreateLead(ObjectContact,
		map[string]interface{}{"firstName": "Ada"})
	assert.Nil(t, err)
	assert.Equal(t, "321", id)
}

func TestUpdateLead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v4_6_release/apis/3.0/company/contacts/321", r.URL.Path)

		var operations []map[string]interface{}
		assert.Nil(t, json.NewDecoder(r.Body).Decode(&operations))
		assert.Len(t, operations, 1)
		assert.Equal(t, "replace", operations[0]["op"])
		assert.Equal(t, "/firstName", operations[0]["path"])
		assert.Equal(t, "Grace", operations[0]["value"])

		fmt.Fprint(w, `{"id":321,"firstName":"Grace"}`)
	}))
	defer server.Close()

	err := testClient(server.URL).UpdateLead(ObjectContact, "321",
		map[string]interface{}{"firstName": "Grace"})
	assert.Nil(t, err)
}
