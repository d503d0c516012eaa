package dynamics

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"crmbridge/integration"
	"crmbridge/model/model"
	U "crmbridge/util"
)

const (
	DYNAMICS_API_ROUTE = "/api/data/v9.0"

	ObjectContact = "contacts"
	ObjectAccount = "accounts"
)

type Client struct {
	projectID   uint64
	accessToken string
	instanceURL string
	settings    model.FeatureSettings
}

func init() {
	integration.Register(U.CRM_NAME_DYNAMICS, NewClient)
}

func NewClient(projectID uint64, creds integration.Credentials,
	settings model.FeatureSettings) (integration.CRMClient, error) {

	if creds.InstanceURL == "" {
		return nil, errors.New("missing dynamics instance url")
	}

	return &Client{
		projectID:   projectID,
		accessToken: creds.AccessToken,
		instanceURL: creds.InstanceURL,
		settings:    settings,
	}, nil
}

func (c *Client) Name() string {
	return U.CRM_NAME_DYNAMICS
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization":    "Bearer " + c.accessToken,
		"OData-MaxVersion": "4.0",
		"OData-Version":    "4.0",
		"Accept":           "application/json",
	}
}

// request executes one Web API call. Dynamics reports success through
// the raw status line, not a response envelope, so callers check the
// status themselves.
func (c *Client) request(method, endpoint string, urlParams map[string]string,
	body interface{}, extraHeaders map[string]string) (int, []byte, error) {

	headers := c.headers()
	for key, value := range extraHeaders {
		headers[key] = value
	}

	status, raw, _, err := integration.MakeRequest(integration.RequestOptions{
		Method:    method,
		URL:       c.instanceURL,
		Endpoint:  endpoint,
		URLParams: urlParams,
		Headers:   headers,
		Body:      body,
		ReturnRaw: true,
	})

	return status, raw, err
}

func (c *Client) IsAuthorized() (bool, error) {
	status, _, err := c.request(http.MethodGet, DYNAMICS_API_ROUTE+"/WhoAmI", nil, nil, nil)
	if err != nil {
		return false, err
	}

	return status == http.StatusOK, nil
}

func (c *Client) GetLeadFields(object string) ([]model.FieldDefinition, error) {
	entity := strings.TrimSuffix(object, "s")
	endpoint := fmt.Sprintf("%s/EntityDefinitions(LogicalName='%s')/Attributes", DYNAMICS_API_ROUTE, entity)

	status, raw, err := c.request(http.MethodGet, endpoint, map[string]string{
		"$filter": "IsValidForUpdate eq true",
		"$select": "LogicalName,AttributeType,RequiredLevel,DisplayName",
	}, nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("attribute metadata request failed with status %d", status)
	}

	var metadata struct {
		Value []struct {
			LogicalName   string `json:"LogicalName"`
			AttributeType string `json:"AttributeType"`
			RequiredLevel struct {
				Value string `json:"Value"`
			} `json:"RequiredLevel"`
			DisplayName struct {
				UserLocalizedLabel struct {
					Label string `json:"Label"`
				} `json:"UserLocalizedLabel"`
			} `json:"DisplayName"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, errors.Wrap(err, "decode attribute metadata")
	}

	fields := make([]model.FieldDefinition, 0, len(metadata.Value))
	for _, attr := range metadata.Value {
		if attr.AttributeType == "Lookup" || attr.AttributeType == "Owner" {
			continue
		}

		label := attr.DisplayName.UserLocalizedLabel.Label
		if label == "" {
			label = attr.LogicalName
		}

		fields = append(fields, model.FieldDefinition{
			Name:         attr.LogicalName,
			Label:        label,
			Kind:         fieldKind(attr.AttributeType),
			Required:     attr.RequiredLevel.Value == "ApplicationRequired",
			VendorObject: object,
		})
	}

	return fields, nil
}

func fieldKind(attributeType string) model.FieldKind {
	switch attributeType {
	case "Boolean":
		return model.FieldKindBoolean
	case "Integer", "Decimal", "Double", "Money", "BigInt":
		return model.FieldKindNumeric
	default:
		return model.FieldKindString
	}
}

// GetLeads pulls records modified inside the query window. The cursor
// is the vendor's @odata.nextLink, followed verbatim.
func (c *Client) GetLeads(object string, query integration.FetchQuery) (*integration.Page, error) {
	var status int
	var raw []byte
	var err error
	if query.Cursor != "" {
		endpoint := strings.TrimPrefix(query.Cursor, c.instanceURL)
		status, raw, err = c.request(http.MethodGet, endpoint, nil, nil, nil)
	} else {
		filter := fmt.Sprintf("modifiedon ge %s and modifiedon le %s",
			query.StartDate.UTC().Format(time.RFC3339),
			query.EndDate.UTC().Format(time.RFC3339))
		status, raw, err = c.request(http.MethodGet, DYNAMICS_API_ROUTE+"/"+object,
			map[string]string{"$filter": filter}, nil, nil)
	}
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch %s failed with status %d", object, status)
	}

	var resp struct {
		Value    []integration.Record `json:"value"`
		NextLink string               `json:"@odata.nextLink"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "decode fetch response")
	}

	for i := range resp.Value {
		for key := range resp.Value[i] {
			if strings.HasPrefix(key, "@odata") {
				delete(resp.Value[i], key)
			}
		}
	}

	return &integration.Page{
		Records:    resp.Value,
		TotalSize:  len(resp.Value),
		HasMore:    resp.NextLink != "",
		NextCursor: resp.NextLink,
	}, nil
}

func (c *Client) GetLeadByID(object, externalID string) (integration.Record, error) {
	endpoint := fmt.Sprintf("%s/%s(%s)", DYNAMICS_API_ROUTE, object, externalID)
	status, raw, err := c.request(http.MethodGet, endpoint, nil, nil, nil)
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
	for key := range record {
		if strings.HasPrefix(key, "@odata") {
			delete(record, key)
		}
	}

	return record, nil
}

// CreateLead creates one record through the $batch path, the only
// surface where the new record's id comes back in the response body
// rather than the OData-EntityId header.
func (c *Client) CreateLead(object string, fields map[string]interface{}) (string, error) {
	ids, err := c.CreateLeads(object, []BatchItem{{Fields: fields}})
	if err != nil {
		return "", err
	}

	id, exists := ids[1]
	if !exists {
		return "", errors.Errorf("create %s returned no entity id", object)
	}

	return id, nil
}

// UpdateLead patches one existing record. If-Match requires the record
// to already exist so an update never upserts.
func (c *Client) UpdateLead(object, externalID string, fields map[string]interface{}) error {
	endpoint := fmt.Sprintf("%s/%s(%s)", DYNAMICS_API_ROUTE, object, externalID)
	status, _, err := c.request(http.MethodPatch, endpoint, nil, fields,
		map[string]string{"If-Match": "*"})
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("update %s failed with status %d", object, status)
	}

	return nil
}

type BatchItem struct {
	ExternalID string
	Fields     map[string]interface{}
}

// EncodeBatch builds the multipart/mixed $batch payload for a set of
// creates or updates inside one changeset. Each part gets a unique
// Content-ID, numbered from 1. Items with an ExternalID become guarded
// updates, the rest guarded creates.
func EncodeBatch(instanceURL, object string, items []BatchItem) (body []byte, contentType string, err error) {
	batchID := "batch_" + uuid.New().String()
	changesetID := "changeset_" + uuid.New().String()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--%s\r\n", batchID)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed;boundary=%s\r\n\r\n", changesetID)

	for i, item := range items {
		payload, err := json.Marshal(item.Fields)
		if err != nil {
			return nil, "", errors.Wrap(err, "marshal batch item")
		}

		fmt.Fprintf(&buf, "--%s\r\n", changesetID)
		buf.WriteString("Content-Type: application/http\r\n")
		buf.WriteString("Content-Transfer-Encoding: binary\r\n")
		fmt.Fprintf(&buf, "Content-ID: %d\r\n\r\n", i+1)

		if item.ExternalID != "" {
			fmt.Fprintf(&buf, "PATCH %s%s/%s(%s) HTTP/1.1\r\n",
				instanceURL, DYNAMICS_API_ROUTE, object, item.ExternalID)
			buf.WriteString("If-Match: *\r\n")
		} else {
			fmt.Fprintf(&buf, "POST %s%s/%s HTTP/1.1\r\n",
				instanceURL, DYNAMICS_API_ROUTE, object)
			buf.WriteString("If-None-Match: *\r\n")
		}
		buf.WriteString("Content-Type: application/json;type=entry\r\n\r\n")
		buf.Write(payload)
		buf.WriteString("\r\n")
	}

	fmt.Fprintf(&buf, "--%s--\r\n", changesetID)
	fmt.Fprintf(&buf, "--%s--\r\n", batchID)

	return buf.Bytes(), "multipart/mixed;boundary=" + batchID, nil
}

// CreateLeads submits creates and updates as one $batch request and
// maps each part's Content-ID back to the created record id.
func (c *Client) CreateLeads(object string, items []BatchItem) (map[int]string, error) {
	logCtx := log.WithFields(log.Fields{"project_id": c.projectID, "object": object})

	body, contentType, err := EncodeBatch(c.instanceURL, object, items)
	if err != nil {
		return nil, err
	}

	status, raw, _, err := integration.MakeRequest(integration.RequestOptions{
		Method:   http.MethodPost,
		URL:      c.instanceURL,
		Endpoint: DYNAMICS_API_ROUTE + "/$batch",
		Headers: map[string]string{
			"Authorization":    "Bearer " + c.accessToken,
			"OData-MaxVersion": "4.0",
			"OData-Version":    "4.0",
			"Accept":           "application/json",
			"Content-Type":     contentType,
		},
		RawBody:   body,
		ReturnRaw: true,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		logCtx.WithField("status", status).Error("Batch request rejected.")
		return nil, fmt.Errorf("batch request failed with status %d", status)
	}

	return parseBatchResponse(raw), nil
}

// parseBatchResponse walks the multipart response parts and collects
// the entity ids of parts that reported 200 or 204, keyed by the
// Content-ID echoed back for each part.
func parseBatchResponse(raw []byte) map[int]string {
	ids := make(map[int]string)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	contentID := 0
	partOK := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "Content-ID:") {
			fmt.Sscanf(line, "Content-ID: %d", &contentID)
			partOK = false
			continue
		}
		if strings.HasPrefix(line, "HTTP/1.1") {
			partOK = strings.Contains(line, " 200 ") || strings.Contains(line, " 204 ")
			continue
		}
		if partOK && strings.HasPrefix(line, "OData-EntityId:") && contentID > 0 {
			value := strings.TrimSpace(strings.TrimPrefix(line, "OData-EntityId:"))
			if open := strings.LastIndex(value, "("); open >= 0 {
				value = strings.TrimSuffix(value[open+1:], ")")
			}
			ids[contentID] = value
		}
	}

	return ids
}

// UpdateLeads batches guarded updates only.
func (c *Client) UpdateLeads(object string, items []BatchItem) (map[int]string, error) {
	for i := range items {
		if items[i].ExternalID == "" {
			return nil, errors.New("update batch item missing external id")
		}
	}

	return c.CreateLeads(object, items)
}

// CreateLeadActivity appends the activity timeline as an annotation on
// the remote record.
func (c *Client) CreateLeadActivity(payload integration.ActivityPayload) error {
	if len(payload.Records) == 0 {
		return nil
	}

	var note strings.Builder
	for _, record := range payload.Records {
		fmt.Fprintf(&note, "%s: %s (%s)\n",
			record.EventType, record.Name, record.DateAdded.UTC().Format(time.RFC3339))
	}

	status, _, err := c.request(http.MethodPost, DYNAMICS_API_ROUTE+"/annotations", nil,
		map[string]interface{}{
			"subject":  "Activity timeline update",
			"notetext": note.String(),
			"objectid_contact@odata.bind": fmt.Sprintf("/contacts(%s)", payload.ExternalID),
		}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusNoContent {
		return fmt.Errorf("create annotation failed with status %d", status)
	}

	return nil
}
