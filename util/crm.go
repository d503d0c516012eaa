package util

// CRM integration names. Used as the registry key, the
// IntegrationEntity integration column and the social cache namespace.
const (
	CRM_NAME_SALESFORCE  = "Salesforce"
	CRM_NAME_DYNAMICS    = "Dynamics"
	CRM_NAME_CONNECTWISE = "Connectwise"
)

const (
	CRM_SYNC_STATUS_SUCCESS  = "success"
	CRM_SYNC_STATUS_FAILURES = "failures_seen"
)

// supportedCRMs holds the vendors a client registers for; IsCRM must
// never claim a name NewClient would reject.
var supportedCRMs = map[string]bool{
	CRM_NAME_SALESFORCE:  true,
	CRM_NAME_DYNAMICS:    true,
	CRM_NAME_CONNECTWISE: true,
}

func IsCRM(name string) bool {
	return supportedCRMs[name]
}
