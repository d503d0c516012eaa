package connectwise

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"crmbridge/integration"
	"crmbridge/model/model"
	U "crmbridge/util"
)

const (
	API_ROUTE = "/v4_6_release/apis/3.0"

	ObjectContact = "contact"
	ObjectCompany = "company"

	fetchPageLimit = 100
)

type Client struct {
	projectID   uint64
	publicKey   string
	privateKey  string
	appID       string
	instanceURL string
	settings    model.FeatureSettings
}

func init() {
	integration.Register(U.CRM_NAME_CONNECTWISE, NewClient)
}

func NewClient(projectID uint64, creds integration.Credentials,
	settings model.FeatureSettings) (integration.CRMClient, error) {

	if creds.InstanceURL == "" || creds.APIKey == "" || creds.APISecret == "" {
		return nil, errors.New("missing connectwise credentials")
	}

	return &Client{
		projectID:   projectID,
		publicKey:   creds.APIKey,
		privateKey:  creds.APISecret,
		appID:       creds.AppID,
		instanceURL: creds.InstanceURL,
		settings:    settings,
	}, nil
}

func (c *Client) Name() string {
	return U.CRM_NAME_CONNECTWISE
}

func (c *Client) headers() map[string]string {
	token := base64.StdEncoding.EncodeToString([]byte(c.publicKey + ":" + c.privateKey))
	return map[string]string{
		"Authorization": "Basic " + token,
		"clientId":      c.appID,
	}
}

func (c *Client) request(method, endpoint string, urlParams map[string]string,
	body interface{}) (int, []byte, error) {

	status, raw, _, err := integration.MakeRequest(integration.RequestOptions{
		Method:    method,
		URL:       c.instanceURL,
		Endpoint:  API_ROUTE + endpoint,
		URLParams: urlParams,
		Headers:   c.headers(),
		Body:      body,
		ReturnRaw: true,
	})

	return status, raw, err
}

func (c *Client) IsAuthorized() (bool, error) {
	status, _, err := c.request(http.MethodGet, "/system/info", nil, nil)
	if err != nil {
		return false, err
	}

	return status == http.StatusOK, nil
}

// GetLeadFields returns the writable field sets. The vendor has no
// usable metadata endpoint for them, so the sets are fixed per object.
// communicationItems is the array field the mapper flattens by type.
func (c *Client) GetLeadFields(object string) ([]model.FieldDefinition, error) {
	switch object {
	case ObjectContact:
		return []model.FieldDefinition{
			{Name: "firstName", Label: "First Name", Kind: model.FieldKindString, Required: true, VendorObject: object},
			{Name: "lastName", Label: "Last Name", Kind: model.FieldKindString, VendorObject: object},
			{Name: "title", Label: "Title", Kind: model.FieldKindString, VendorObject: object},
			{Name: "city", Label: "City", Kind: model.FieldKindString, VendorObject: object},
			{Name: "state", Label: "State", Kind: model.FieldKindString, VendorObject: object},
			{Name: "zip", Label: "Zip", Kind: model.FieldKindString, VendorObject: object},
			{Name: "communicationItems", Label: "Communication Items", Kind: model.FieldKindArray,
				VendorObject: object, ItemKeys: &model.FieldItemKeys{Name: "type.name", Value: "value"}},
		}, nil
	case ObjectCompany:
		return []model.FieldDefinition{
			{Name: "name", Label: "Name", Kind: model.FieldKindString, Required: true, VendorObject: object},
			{Name: "identifier", Label: "Identifier", Kind: model.FieldKindString, Required: true, VendorObject: object},
			{Name: "website", Label: "Website", Kind: model.FieldKindString, VendorObject: object},
			{Name: "city", Label: "City", Kind: model.FieldKindString, VendorObject: object},
			{Name: "state", Label: "State", Kind: model.FieldKindString, VendorObject: object},
			{Name: "phoneNumber", Label: "Phone", Kind: model.FieldKindString, VendorObject: object},
		}, nil
	}

	return nil, fmt.Errorf("unsupported object %q", object)
}

// decodeCursor splits the "vid:timeOffset" cursor the fetch loop hands
// back after each page.
func decodeCursor(cursor string) (vidOffset int, timeOffset int64) {
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	vidOffset, _ = strconv.Atoi(parts[0])
	timeOffset, _ = strconv.ParseInt(parts[1], 10, 64)
	return vidOffset, timeOffset
}

// GetLeads pulls one page of records. Pagination pairs an id offset
// with a last-updated offset so restarting mid-window never skips
// records updated at the same instant.
func (c *Client) GetLeads(object string, query integration.FetchQuery) (*integration.Page, error) {
	vidOffset, timeOffset := decodeCursor(query.Cursor)
	startMilli := query.StartDate.UTC().UnixNano() / 1e6
	if timeOffset > 0 {
		startMilli = timeOffset
	}

	params := map[string]string{
		"pageSize":   strconv.Itoa(fetchPageLimit),
		"orderBy":    "_info/lastUpdated asc, id asc",
		"conditions": fmt.Sprintf("lastUpdated >= [%d] and id > %d", startMilli, vidOffset),
	}

	endpoint := "/company/contacts"
	if object == ObjectCompany {
		endpoint = "/company/companies"
	}

	status, raw, err := c.request(http.MethodGet, endpoint, params, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch %s failed with status %d", object, status)
	}

	var records []integration.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		// Some deployments wrap the list in an envelope with a has-more
		// flag and explicit next offsets.
		var envelope struct {
			Records    []integration.Record `json:"records"`
			HasMore    bool                 `json:"has-more"`
			VidOffset  int                  `json:"vid-offset"`
			TimeOffset int64                `json:"time-offset"`
		}
		if envErr := json.Unmarshal(raw, &envelope); envErr != nil {
			return nil, errors.Wrap(err, "decode fetch response")
		}

		return &integration.Page{
			Records:    envelope.Records,
			TotalSize:  len(envelope.Records),
			HasMore:    envelope.HasMore,
			NextCursor: fmt.Sprintf("%d:%d", envelope.VidOffset, envelope.TimeOffset),
		}, nil
	}

	page := &integration.Page{Records: records, TotalSize: len(records)}
	if len(records) == fetchPageLimit {
		lastVid, lastUpdated := pageOffsets(records)
		page.HasMore = true
		page.NextCursor = fmt.Sprintf("%d:%d", lastVid, lastUpdated)
	}

	return page, nil
}

func pageOffsets(records []integration.Record) (int, int64) {
	last := records[len(records)-1]

	vid := 0
	if id, ok := last["id"].(float64); ok {
		vid = int(id)
	}

	var updated int64
	if info, ok := last["_info"].(map[string]interface{}); ok {
		if ms, ok := info["lastUpdatedMilli"].(float64); ok {
			updated = int64(ms)
		}
	}

	return vid, updated
}

func (c *Client) GetLeadByID(object, externalID string) (integration.Record, error) {
	endpoint := fmt.Sprintf("/company/contacts/%s", externalID)
	if object == ObjectCompany {
		endpoint = fmt.Sprintf("/company/companies/%s", externalID)
	}

	status, raw, err := c.request(http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get %s failed with status %d", object, status)
	}

	var record integration.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errors.Wrap(err, "decode record response")
	}

	return record, nil
}

func (c *Client) CreateLead(object string, fields map[string]interface{}) (string, error) {
	endpoint := "/company/contacts"
	if object == ObjectCompany {
		endpoint = "/company/companies"
	}

	status, raw, err := c.request(http.MethodPost, endpoint, nil, fields)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("create %s failed with status %d", object, status)
	}

	var created struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", errors.Wrap(err, "decode create response")
	}

	return created.ID.String(), nil
}

// UpdateLead patches the existing record with one replace operation
// per mapped field, the vendor's JSON Patch surface.
func (c *Client) UpdateLead(object, externalID string, fields map[string]interface{}) error {
	endpoint := fmt.Sprintf("/company/contacts/%s", externalID)
	if object == ObjectCompany {
		endpoint = fmt.Sprintf("/company/companies/%s", externalID)
	}

	operations := make([]map[string]interface{}, 0, len(fields))
	for field, value := range fields {
		operations = append(operations, map[string]interface{}{
			"op":    "replace",
			"path":  "/" + field,
			"value": value,
		})
	}

	status, _, err := c.request(http.MethodPatch, endpoint, nil, operations)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("update %s failed with status %d", object, status)
	}

	return nil
}

// CreateLeadActivity writes the timeline as notes on the contact.
func (c *Client) CreateLeadActivity(payload integration.ActivityPayload) error {
	if len(payload.Records) == 0 {
		return nil
	}

	var note strings.Builder
	for _, record := range payload.Records {
		fmt.Fprintf(&note, "%s: %s\n", record.EventType, record.Name)
	}

	endpoint := fmt.Sprintf("/company/contacts/%s/notes", payload.ExternalID)
	status, _, err := c.request(http.MethodPost, endpoint, nil, map[string]interface{}{
		"text": note.String(),
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("create note failed with status %d", status)
	}

	return nil
}

// AmendPopulate flattens identity-profiles shaped records. When a
// contact carries no top level email but an identity profile does, the
// profile's EMAIL identity becomes the record's email.
func (c *Client) AmendPopulate(object string, record integration.Record) integration.Record {
	if object != ObjectContact {
		return record
	}
	if email, ok := record["email"]; ok && U.GetPropertyValueAsString(email) != "" {
		return record
	}

	profiles, ok := record["identity-profiles"].([]interface{})
	if !ok {
		return record
	}
	for _, rawProfile := range profiles {
		profile, ok := rawProfile.(map[string]interface{})
		if !ok {
			continue
		}
		identities, ok := profile["identities"].([]interface{})
		if !ok {
			continue
		}
		for _, rawIdentity := range identities {
			identity, ok := rawIdentity.(map[string]interface{})
			if !ok {
				continue
			}
			if U.GetPropertyValueAsString(identity["type"]) == "EMAIL" {
				record["email"] = identity["value"]
				return record
			}
		}
	}

	return record
}
