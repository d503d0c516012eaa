package postgres

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	C "crmbridge/config"
	"crmbridge/model/model"
)

func (store *Postgres) GetIntegrationEntityByExternalID(projectID uint64,
	integration, externalType, externalID string) (*model.IntegrationEntity, int) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID,
		"integration": integration, "external_type": externalType, "external_id": externalID})

	if projectID == 0 || integration == "" || externalType == "" || externalID == "" {
		logCtx.Error("Invalid fields on get integration entity by external id.")
		return nil, http.StatusBadRequest
	}

	var entities []model.IntegrationEntity
	db := C.GetServices().Db
	err := db.Limit(1).Where(
		"project_id = ? AND integration = ? AND external_type = ? AND external_id = ?",
		projectID, integration, externalType, externalID).Find(&entities).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to get integration entity by external id.")
		return nil, http.StatusInternalServerError
	}

	if len(entities) == 0 {
		return nil, http.StatusNotFound
	}

	return &entities[0], http.StatusFound
}

func (store *Postgres) GetIntegrationEntityByInternalID(projectID uint64,
	integration, externalType, internalType string, internalID uint64) (*model.IntegrationEntity, int) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID,
		"integration": integration, "internal_type": internalType, "internal_id": internalID})

	if projectID == 0 || integration == "" || externalType == "" ||
		internalType == "" || internalID == 0 {
		logCtx.Error("Invalid fields on get integration entity by internal id.")
		return nil, http.StatusBadRequest
	}

	var entities []model.IntegrationEntity
	db := C.GetServices().Db
	err := db.Limit(1).Where(
		"project_id = ? AND integration = ? AND external_type = ? AND internal_type = ? AND internal_id = ?",
		projectID, integration, externalType, internalType, internalID).Find(&entities).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to get integration entity by internal id.")
		return nil, http.StatusInternalServerError
	}

	if len(entities) == 0 {
		return nil, http.StatusNotFound
	}

	return &entities[0], http.StatusFound
}

// UpsertIntegrationEntity - Creates the link on first contact, bumps
// last_sync_date on every later sync. Read then write under the host's
// transaction discipline; idempotent on the external tuple key.
func (store *Postgres) UpsertIntegrationEntity(projectID uint64,
	entity *model.IntegrationEntity) int {

	logCtx := log.WithFields(log.Fields{"project_id": projectID,
		"integration": entity.Integration, "external_id": entity.ExternalID})

	if projectID == 0 || entity.Integration == "" || entity.ExternalType == "" ||
		entity.ExternalID == "" || entity.InternalType == "" || entity.InternalID == 0 {
		logCtx.Error("Invalid fields on upsert integration entity.")
		return http.StatusBadRequest
	}
	entity.ProjectID = projectID

	existing, errCode := store.GetIntegrationEntityByExternalID(projectID,
		entity.Integration, entity.ExternalType, entity.ExternalID)
	if errCode == http.StatusInternalServerError || errCode == http.StatusBadRequest {
		return errCode
	}

	db := C.GetServices().Db
	if errCode == http.StatusNotFound {
		entity.LastSyncDate = time.Now().UTC()
		if err := db.Create(entity).Error; err != nil {
			logCtx.WithError(err).Error("Failed to create integration entity.")
			return http.StatusInternalServerError
		}

		return http.StatusCreated
	}

	err := db.Model(&model.IntegrationEntity{}).Where("id = ?", existing.ID).
		Update("last_sync_date", time.Now().UTC()).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to update integration entity last sync date.")
		return http.StatusInternalServerError
	}
	entity.ID = existing.ID

	return http.StatusAccepted
}

// GetIntegrationEntitiesByLastSync - Pages links inside a last sync
// window. Work queue for activity push batching.
func (store *Postgres) GetIntegrationEntitiesByLastSync(projectID uint64,
	integration, externalType, internalType string,
	startDate, endDate time.Time, offset, limit int) ([]model.IntegrationEntity, int) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID,
		"integration": integration, "external_type": externalType})

	if projectID == 0 || integration == "" || externalType == "" || internalType == "" {
		logCtx.Error("Invalid fields on get integration entities by last sync.")
		return nil, http.StatusBadRequest
	}

	var entities []model.IntegrationEntity
	db := C.GetServices().Db
	err := db.Order("last_sync_date, id ASC").Offset(offset).Limit(limit).Where(
		"project_id = ? AND integration = ? AND external_type = ? AND internal_type = ? AND last_sync_date >= ? AND last_sync_date <= ?",
		projectID, integration, externalType, internalType, startDate, endDate).
		Find(&entities).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to get integration entities by last sync.")
		return nil, http.StatusInternalServerError
	}

	if len(entities) == 0 {
		return nil, http.StatusNotFound
	}

	return entities, http.StatusFound
}
