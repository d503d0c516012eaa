package postgres

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	C "crmbridge/config"
	"crmbridge/model/model"
	U "crmbridge/util"
)

// GetLeadByUniqueFields - Finds an existing lead where any of the
// given unique identifier fields matches. First match wins.
func (store *Postgres) GetLeadByUniqueFields(projectID uint64,
	uniqueFieldData map[string]interface{}) (*model.Lead, int) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID, "unique_fields": uniqueFieldData})

	if projectID == 0 || len(uniqueFieldData) == 0 {
		logCtx.Error("Invalid project_id or unique fields on get lead by unique fields.")
		return nil, http.StatusBadRequest
	}

	conditions := make([]string, 0, len(uniqueFieldData))
	args := make([]interface{}, 0, len(uniqueFieldData)*2)
	for field, value := range uniqueFieldData {
		conditions = append(conditions, "properties->>? = ?")
		args = append(args, field, U.GetPropertyValueAsString(value))
	}

	var leads []model.Lead
	db := C.GetServices().Db
	err := db.Order("id").Limit(1).Where("project_id = ?", projectID).
		Where(strings.Join(conditions, " OR "), args...).Find(&leads).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to get lead by unique fields.")
		return nil, http.StatusInternalServerError
	}

	if len(leads) == 0 {
		return nil, http.StatusNotFound
	}

	return &leads[0], http.StatusFound
}

func (store *Postgres) SaveLead(projectID uint64, lead *model.Lead) int {
	logCtx := log.WithFields(log.Fields{"project_id": projectID, "lead_id": lead.ID})

	if projectID == 0 {
		logCtx.Error("Invalid project_id on save lead.")
		return http.StatusBadRequest
	}
	lead.ProjectID = projectID

	if U.IsEmptyPostgresJsonb(lead.Properties) {
		logCtx.Error("Empty properties on save lead.")
		return http.StatusBadRequest
	}

	db := C.GetServices().Db
	if err := db.Save(lead).Error; err != nil {
		logCtx.WithError(err).Error("Failed to save lead.")
		return http.StatusInternalServerError
	}

	return http.StatusAccepted
}

func (store *Postgres) GetCompanyByUniqueFields(projectID uint64,
	uniqueFieldData map[string]interface{}) (*model.Company, int) {

	logCtx := log.WithFields(log.Fields{"project_id": projectID, "unique_fields": uniqueFieldData})

	if projectID == 0 || len(uniqueFieldData) == 0 {
		logCtx.Error("Invalid project_id or unique fields on get company by unique fields.")
		return nil, http.StatusBadRequest
	}

	conditions := make([]string, 0, len(uniqueFieldData))
	args := make([]interface{}, 0, len(uniqueFieldData)*2)
	for field, value := range uniqueFieldData {
		conditions = append(conditions, "properties->>? = ?")
		args = append(args, field, U.GetPropertyValueAsString(value))
	}

	var companies []model.Company
	db := C.GetServices().Db
	err := db.Order("id").Limit(1).Where("project_id = ?", projectID).
		Where(strings.Join(conditions, " OR "), args...).Find(&companies).Error
	if err != nil {
		logCtx.WithError(err).Error("Failed to get company by unique fields.")
		return nil, http.StatusInternalServerError
	}

	if len(companies) == 0 {
		return nil, http.StatusNotFound
	}

	return &companies[0], http.StatusFound
}

func (store *Postgres) SaveCompany(projectID uint64, company *model.Company) int {
	logCtx := log.WithFields(log.Fields{"project_id": projectID, "company_id": company.ID})

	if projectID == 0 {
		logCtx.Error("Invalid project_id on save company.")
		return http.StatusBadRequest
	}
	company.ProjectID = projectID

	if U.IsEmptyPostgresJsonb(company.Properties) {
		logCtx.Error("Empty properties on save company.")
		return http.StatusBadRequest
	}

	db := C.GetServices().Db
	if err := db.Save(company).Error; err != nil {
		logCtx.WithError(err).Error("Failed to save company.")
		return http.StatusInternalServerError
	}

	return http.StatusAccepted
}

func (store *Postgres) GetUserByEmail(projectID uint64, email string) (*model.User, int) {
	if projectID == 0 || email == "" {
		return nil, http.StatusBadRequest
	}

	var users []model.User
	db := C.GetServices().Db
	err := db.Limit(1).Where("project_id = ? AND email = ?", projectID, email).Find(&users).Error
	if err != nil {
		log.WithField("email", email).WithError(err).Error("Failed to get user by email.")
		return nil, http.StatusInternalServerError
	}

	if len(users) == 0 {
		return nil, http.StatusNotFound
	}

	return &users[0], http.StatusFound
}
