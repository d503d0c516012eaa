package postgres

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	C "crmbridge/config"
	"crmbridge/model/model"
)

func (store *Postgres) GetIntegrationSetting(projectID uint64,
	integration string) (*model.IntegrationSetting, int) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID, "integration": integration})

	if projectID == 0 || integration == "" {
		logCtx.Error("Invalid fields on get integration setting.")
		return nil, http.StatusBadRequest
	}

	var settings []model.IntegrationSetting
	db := C.GetServices().Db
	err := db.Limit(1).Where("project_id = ? AND name = ?",
		projectID, integration).Find(&settings).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to get integration setting.")
		return nil, http.StatusInternalServerError
	}

	if len(settings) == 0 {
		return nil, http.StatusNotFound
	}

	return &settings[0], http.StatusFound
}

func (store *Postgres) SaveIntegrationSetting(projectID uint64,
	setting *model.IntegrationSetting) int {

	logCtx := log.WithFields(log.Fields{"project_id": projectID, "integration": setting.Name})

	if projectID == 0 || setting.Name == "" {
		logCtx.Error("Invalid fields on save integration setting.")
		return http.StatusBadRequest
	}
	setting.ProjectID = projectID

	db := C.GetServices().Db
	if err := db.Save(setting).Error; err != nil {
		logCtx.WithError(err).Error("Failed to save integration setting.")
		return http.StatusInternalServerError
	}

	return http.StatusAccepted
}

func (store *Postgres) GetEnabledIntegrationSettings(integration string) ([]model.IntegrationSetting, int) {
	logCtx := log.WithFields(log.Fields{"integration": integration})

	if integration == "" {
		logCtx.Error("Invalid integration on get enabled integration settings.")
		return nil, http.StatusBadRequest
	}

	var settings []model.IntegrationSetting
	db := C.GetServices().Db
	err := db.Where("name = ? AND enabled = ?", integration, true).Find(&settings).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to get enabled integration settings.")
		return nil, http.StatusInternalServerError
	}

	if len(settings) == 0 {
		return nil, http.StatusNotFound
	}

	return settings, http.StatusFound
}
