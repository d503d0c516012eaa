package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"crmbridge/crm_sync"
	"crmbridge/integration"
	"crmbridge/model/model"
	"crmbridge/model/store"
)

// WebhookEvent is one change notification from a vendor. The
// subscription type is "<object>.<action>", i.e "contact.creation".
type WebhookEvent struct {
	SubscriptionType string `json:"subscriptionType"`
	ObjectID         string `json:"objectId"`
	ObjectType       string `json:"objectType"`
}

// orchestratorBuilder is swapped in tests to avoid real vendor clients.
var orchestratorBuilder = buildOrchestrator

func buildOrchestrator(projectID uint64, integrationName string) (*crm_sync.Orchestrator, error) {
	setting, errCode := store.GetStore().GetIntegrationSetting(projectID, integrationName)
	if errCode != http.StatusFound {
		return nil, errors.New("integration setting not found")
	}
	if !setting.Enabled {
		return nil, errors.New("integration disabled")
	}

	settings, err := setting.GetFeatureSettings()
	if err != nil {
		return nil, err
	}

	var creds integration.Credentials
	if setting.Credentials != nil {
		if err := json.Unmarshal(setting.Credentials.RawMessage, &creds); err != nil {
			return nil, err
		}
	}

	client, err := integration.NewClient(integrationName, projectID, creds, *settings)
	if err != nil {
		return nil, err
	}

	return crm_sync.NewOrchestrator(projectID, client, store.GetStore(), *settings), nil
}

// IntegrationWebhookHandler receives vendor change notifications and
// reconciles each referenced record. Event failures are logged per
// event; the response says whether all events were applied.
func IntegrationWebhookHandler(c *gin.Context) {
	integrationName := c.Params.ByName("integration")
	projectID, err := strconv.ParseUint(c.Query("project_id"), 10, 64)
	if err != nil || projectID == 0 {
		c.String(http.StatusBadRequest, "ERROR")
		return
	}

	logCtx := log.WithFields(log.Fields{"project_id": projectID, "integration": integrationName})

	var events []WebhookEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		logCtx.WithError(err).Error("Failed to decode webhook payload.")
		c.String(http.StatusBadRequest, "ERROR")
		return
	}

	orchestrator, err := orchestratorBuilder(projectID, integrationName)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build sync orchestrator for webhook.")
		c.String(http.StatusInternalServerError, "ERROR")
		return
	}

	failures := 0
	for _, event := range events {
		if err := applyWebhookEvent(orchestrator, event); err != nil {
			logCtx.WithError(err).WithFields(log.Fields{
				"subscription_type": event.SubscriptionType,
				"object_id":         event.ObjectID,
			}).Error("Failed to apply webhook event.")
			failures++
		}
	}

	if failures > 0 {
		c.String(http.StatusInternalServerError, "ERROR")
		return
	}
	c.String(http.StatusOK, "OK")
}

func applyWebhookEvent(orchestrator *crm_sync.Orchestrator, event WebhookEvent) error {
	if event.ObjectID == "" {
		return errors.New("event missing object id")
	}

	objectName := strings.SplitN(event.SubscriptionType, ".", 2)[0]
	vendorObject := event.ObjectType
	if vendorObject == "" {
		vendorObject = objectName
	}

	var result crm_sync.RecordResult
	if strings.EqualFold(objectName, "company") || strings.EqualFold(objectName, "account") {
		result = orchestrator.GetCompanies(vendorObject, event.ObjectID)
	} else {
		result = orchestrator.GetContacts(vendorObject, event.ObjectID)
	}

	if result.Err != nil && result.Err != model.ErrIdentityUnresolved {
		return result.Err
	}

	return nil
}
