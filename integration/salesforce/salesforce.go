package salesforce

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"crmbridge/integration"
	"crmbridge/model/model"
	U "crmbridge/util"
)

const (
	SALESFORCE_TOKEN_URL          = "https://login.salesforce.com/services/oauth2/token"
	SALESFORCE_DATA_SERVICE_ROUTE = "/services/data/"
	SALESFORCE_API_VERSION        = "v52.0"

	ObjectLead    = "Lead"
	ObjectAccount = "Account"
)

// fields the describe filter always keeps editable but never required.
var nonRequiredByName = map[string]bool{
	"Status": true,
}

type Client struct {
	projectID    uint64
	accessToken  string
	refreshToken string
	clientID     string
	clientSecret string
	instanceURL  string
	tokenURL     string
	settings     model.FeatureSettings
}

func init() {
	integration.Register(U.CRM_NAME_SALESFORCE, NewClient)
}

func NewClient(projectID uint64, creds integration.Credentials,
	settings model.FeatureSettings) (integration.CRMClient, error) {

	if creds.InstanceURL == "" {
		return nil, errors.New("missing salesforce instance url")
	}

	return &Client{
		projectID:    projectID,
		accessToken:  creds.AccessToken,
		refreshToken: creds.RefreshToken,
		clientID:     creds.APIKey,
		clientSecret: creds.APISecret,
		instanceURL:  creds.InstanceURL,
		tokenURL:     SALESFORCE_TOKEN_URL,
		settings:     settings,
	}, nil
}

func (c *Client) Name() string {
	return U.CRM_NAME_SALESFORCE
}

func (c *Client) dataRoute(endpoint string) string {
	return SALESFORCE_DATA_SERVICE_ROUTE + SALESFORCE_API_VERSION + endpoint
}

func (c *Client) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.accessToken}
}

// request executes one API call against the instance, refreshing the
// access token and retrying exactly once when the session has expired.
func (c *Client) request(opts integration.RequestOptions) (int, []byte, interface{}, error) {
	opts.URL = c.instanceURL
	opts.Headers = c.authHeaders()

	status, raw, body, err := integration.MakeRequest(opts)
	if err != nil && integration.IsAuthExpiredError(err) {
		logCtx := log.WithFields(log.Fields{"project_id": c.projectID})
		if refreshErr := c.refreshAccessToken(); refreshErr != nil {
			logCtx.WithError(refreshErr).Error("Failed to refresh salesforce access token.")
			return status, raw, body, err
		}
		logCtx.Info("Refreshed salesforce access token after expired session.")

		opts.Headers = c.authHeaders()
		return integration.MakeRequest(opts)
	}

	return status, raw, body, err
}

// refreshAccessToken gets a new salesforce access token by refresh token.
func (c *Client) refreshAccessToken() error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	status, raw, _, err := integration.MakeRequest(integration.RequestOptions{
		Method:    http.MethodPost,
		URL:       c.tokenURL,
		FormBody:  form,
		ReturnRaw: true,
	})
	if err != nil {
		return errors.Wrap(err, "refresh token request")
	}
	if status != http.StatusOK {
		return fmt.Errorf("refresh token request failed with status %d", status)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		InstanceURL string `json:"instance_url"`
	}
	if err := json.Unmarshal(raw, &tokenResp); err != nil {
		return errors.Wrap(err, "decode token response")
	}
	if tokenResp.AccessToken == "" {
		return errors.New("empty access token on refresh response")
	}

	c.accessToken = tokenResp.AccessToken
	if tokenResp.InstanceURL != "" {
		c.instanceURL = tokenResp.InstanceURL
	}

	return nil
}

func (c *Client) IsAuthorized() (bool, error) {
	status, _, _, err := c.request(integration.RequestOptions{
		Method:   http.MethodGet,
		Endpoint: c.dataRoute("/sobjects/"),
	})
	if err != nil {
		return false, err
	}

	return status == http.StatusOK, nil
}

type describeField struct {
	Name           string `json:"name"`
	Label          string `json:"label"`
	Type           string `json:"type"`
	Updateable     bool   `json:"updateable"`
	Nillable       bool   `json:"nillable"`
	PicklistValues []struct {
		Value string `json:"value"`
	} `json:"picklistValues"`
}

// GetLeadFields describes the object and keeps only fields the mapping
// UI can write to. Reference fields and non-updateable fields are
// dropped. A field is required when the vendor marks it non nullable,
// except booleans and fields the UI treats as defaulted.
func (c *Client) GetLeadFields(object string) ([]model.FieldDefinition, error) {
	_, raw, _, err := c.request(integration.RequestOptions{
		Method:    http.MethodGet,
		Endpoint:  c.dataRoute(fmt.Sprintf("/sobjects/%s/describe/", object)),
		ReturnRaw: true,
	})
	if err != nil {
		return nil, err
	}

	var describe struct {
		Fields []describeField `json:"fields"`
	}
	if err := json.Unmarshal(raw, &describe); err != nil {
		return nil, errors.Wrap(err, "decode describe response")
	}

	fields := make([]model.FieldDefinition, 0, len(describe.Fields))
	for _, field := range describe.Fields {
		if !field.Updateable || field.Type == "reference" {
			continue
		}

		required := field.Type != "boolean" && !field.Nillable &&
			!nonRequiredByName[field.Name]

		fields = append(fields, model.FieldDefinition{
			Name:         field.Name,
			Label:        field.Label,
			Kind:         fieldKind(field.Type),
			Required:     required,
			VendorObject: object,
		})
	}

	return fields, nil
}

func fieldKind(vendorType string) model.FieldKind {
	switch vendorType {
	case "boolean":
		return model.FieldKindBoolean
	case "int", "double", "currency", "percent":
		return model.FieldKindNumeric
	default:
		return model.FieldKindString
	}
}

type queryResponse struct {
	TotalSize      int                  `json:"totalSize"`
	Done           bool                 `json:"done"`
	NextRecordsURL string               `json:"nextRecordsUrl"`
	Records        []integration.Record `json:"records"`
}

// GetLeads pulls records modified inside the query window. The cursor
// is the vendor's nextRecordsUrl, followed verbatim batch by batch.
func (c *Client) GetLeads(object string, query integration.FetchQuery) (*integration.Page, error) {
	var opts integration.RequestOptions
	if query.Cursor != "" {
		opts = integration.RequestOptions{
			Method:    http.MethodGet,
			Endpoint:  query.Cursor,
			ReturnRaw: true,
		}
	} else {
		mapping := c.settings.LeadFieldsForObject(object)
		if object == ObjectAccount {
			mapping = c.settings.CompanyFieldsForObject(object)
		}
		fieldNames := make([]string, 0, len(mapping))
		for _, externalField := range mapping {
			fieldNames = append(fieldNames, externalField)
		}
		sort.Strings(fieldNames)

		selectClause := "Id"
		if len(fieldNames) > 0 {
			selectClause = "Id," + strings.Join(fieldNames, ",")
		}

		soql := fmt.Sprintf("SELECT %s FROM %s WHERE LastModifiedDate >= %s AND LastModifiedDate <= %s",
			selectClause, object,
			query.StartDate.UTC().Format("2006-01-02T15:04:05Z"),
			query.EndDate.UTC().Format("2006-01-02T15:04:05Z"))

		opts = integration.RequestOptions{
			Method:    http.MethodGet,
			Endpoint:  c.dataRoute("/query/"),
			URLParams: map[string]string{"q": soql},
			ReturnRaw: true,
		}
	}

	_, raw, _, err := c.request(opts)
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "decode query response")
	}

	for i := range resp.Records {
		delete(resp.Records[i], "attributes")
	}

	return &integration.Page{
		Records:    resp.Records,
		TotalSize:  resp.TotalSize,
		HasMore:    !resp.Done && resp.NextRecordsURL != "",
		NextCursor: resp.NextRecordsURL,
	}, nil
}

func (c *Client) GetLeadByID(object, externalID string) (integration.Record, error) {
	_, raw, _, err := c.request(integration.RequestOptions{
		Method:    http.MethodGet,
		Endpoint:  c.dataRoute(fmt.Sprintf("/sobjects/%s/%s", object, externalID)),
		ReturnRaw: true,
	})
	if err != nil {
		return nil, err
	}

	var record integration.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errors.Wrap(err, "decode record response")
	}
	delete(record, "attributes")

	return record, nil
}

func (c *Client) CreateLead(object string, fields map[string]interface{}) (string, error) {
	status, raw, _, err := c.request(integration.RequestOptions{
		Method:    http.MethodPost,
		Endpoint:  c.dataRoute(fmt.Sprintf("/sobjects/%s/", object)),
		Body:      fields,
		ReturnRaw: true,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("create %s failed with status %d", object, status)
	}

	var created struct {
		ID      string `json:"id"`
		Success bool   `json:"success"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", errors.Wrap(err, "decode create response")
	}
	if !created.Success {
		return "", fmt.Errorf("create %s reported failure", object)
	}

	return created.ID, nil
}

// UpdateLead patches the remote record in place. The vendor answers
// an empty 204 on success.
func (c *Client) UpdateLead(object, externalID string, fields map[string]interface{}) error {
	status, _, _, err := c.request(integration.RequestOptions{
		Method:    http.MethodPatch,
		Endpoint:  c.dataRoute(fmt.Sprintf("/sobjects/%s/%s", object, externalID)),
		Body:      fields,
		ReturnRaw: true,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return fmt.Errorf("update %s failed with status %d", object, status)
	}

	return nil
}

// CreateLeadActivity pushes the lead's activity timeline as a task
// attached to the remote lead.
func (c *Client) CreateLeadActivity(payload integration.ActivityPayload) error {
	if len(payload.Records) == 0 {
		return nil
	}

	var description strings.Builder
	for _, record := range payload.Records {
		fmt.Fprintf(&description, "%s: %s (%s)\n",
			record.EventType, record.Name, record.DateAdded.UTC().Format(time.RFC3339))
	}
	if payload.LeadURL != "" {
		fmt.Fprintf(&description, "Timeline: %s\n", payload.LeadURL)
	}

	_, err := c.CreateLead("Task", map[string]interface{}{
		"WhoId":       payload.ExternalID,
		"Subject":     "Activity timeline update",
		"Description": description.String(),
		"Status":      "Completed",
		"ActivityDate": time.Now().UTC().Format("2006-01-02"),
	})

	return err
}

// GetOrganizationCreatedDate reads the remote org's creation date, used
// to clamp the first pull window.
func (c *Client) GetOrganizationCreatedDate() (time.Time, error) {
	_, raw, _, err := c.request(integration.RequestOptions{
		Method:    http.MethodGet,
		Endpoint:  c.dataRoute("/query/"),
		URLParams: map[string]string{"q": "SELECT CreatedDate FROM Organization"},
		ReturnRaw: true,
	})
	if err != nil {
		return time.Time{}, err
	}

	var resp queryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return time.Time{}, errors.Wrap(err, "decode organization query response")
	}
	if len(resp.Records) == 0 {
		return time.Time{}, errors.New("no organization record")
	}

	createdDate := U.GetPropertyValueAsString(resp.Records[0]["CreatedDate"])
	parsed, err := time.Parse("2006-01-02T15:04:05.000-0700", createdDate)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, createdDate)
		if err != nil {
			return time.Time{}, errors.Wrap(err, "parse organization created date")
		}
	}

	return parsed, nil
}
