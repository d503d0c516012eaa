package postgres

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	C "crmbridge/config"
	"crmbridge/model/model"
)

func (store *Postgres) GetPointChangesByLeadIDs(projectID uint64, leadIDs []uint64,
	startDate, endDate time.Time) ([]model.PointChangeLog, int) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID})

	if projectID == 0 || len(leadIDs) == 0 {
		logCtx.Error("Invalid fields on get point changes by lead ids.")
		return nil, http.StatusBadRequest
	}

	var changes []model.PointChangeLog
	db := C.GetServices().Db
	err := db.Order("date_added ASC").Where(
		"project_id = ? AND lead_id IN (?) AND date_added >= ? AND date_added <= ?",
		projectID, leadIDs, startDate, endDate).Find(&changes).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to get point changes by lead ids.")
		return nil, http.StatusInternalServerError
	}

	if len(changes) == 0 {
		return nil, http.StatusNotFound
	}

	return changes, http.StatusFound
}

func (store *Postgres) GetEmailStatsByLeadIDs(projectID uint64, leadIDs []uint64,
	startDate, endDate time.Time) ([]model.EmailStat, int) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID})

	if projectID == 0 || len(leadIDs) == 0 {
		logCtx.Error("Invalid fields on get email stats by lead ids.")
		return nil, http.StatusBadRequest
	}

	var stats []model.EmailStat
	db := C.GetServices().Db
	err := db.Order("date_sent ASC").Where(
		"project_id = ? AND lead_id IN (?) AND date_sent >= ? AND date_sent <= ?",
		projectID, leadIDs, startDate, endDate).Find(&stats).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to get email stats by lead ids.")
		return nil, http.StatusInternalServerError
	}

	if len(stats) == 0 {
		return nil, http.StatusNotFound
	}

	return stats, http.StatusFound
}

func (store *Postgres) GetFormSubmissionsByLeadIDs(projectID uint64, leadIDs []uint64,
	startDate, endDate time.Time) ([]model.FormSubmission, int) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID})

	if projectID == 0 || len(leadIDs) == 0 {
		logCtx.Error("Invalid fields on get form submissions by lead ids.")
		return nil, http.StatusBadRequest
	}

	var submissions []model.FormSubmission
	db := C.GetServices().Db
	err := db.Order("date_submitted ASC").Where(
		"project_id = ? AND lead_id IN (?) AND date_submitted >= ? AND date_submitted <= ?",
		projectID, leadIDs, startDate, endDate).Find(&submissions).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to get form submissions by lead ids.")
		return nil, http.StatusInternalServerError
	}

	if len(submissions) == 0 {
		return nil, http.StatusNotFound
	}

	return submissions, http.StatusFound
}
