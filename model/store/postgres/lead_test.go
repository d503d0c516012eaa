package postgres

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"

	C "crmbridge/config"
	"crmbridge/model/model"
	U "crmbridge/util"
)

func setupMockDB(t *testing.T) sqlmock.Sqlmock {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.Nil(t, err)

	gdb, err := gorm.Open("postgres", db)
	assert.Nil(t, err)
	C.SetServicesDb(gdb)

	t.Cleanup(func() { gdb.Close() })
	return mock
}

func TestGetLeadByUniqueFields(t *testing.T) {
	t.Run("MatchesOnPropertiesColumn", func(t *testing.T) {
		mock := setupMockDB(t)

		properties, _ := json.Marshal(map[string]interface{}{"email": "a@b.com"})
		rows := sqlmock.NewRows([]string{"id", "project_id", "properties"}).
			AddRow(7, 1, properties)
		mock.ExpectQuery(`SELECT (.+) FROM "leads" (.+)properties->>(.+)`).
			WithArgs(uint64(1), "email", "a@b.com").
			WillReturnRows(rows)

		store := &Postgres{}
		lead, status := store.GetLeadByUniqueFields(1,
			map[string]interface{}{"email": "a@b.com"})

		assert.Equal(t, http.StatusFound, status)
		assert.Equal(t, uint64(7), lead.ID)
		assert.Nil(t, mock.ExpectationsWereMet())
	})

	t.Run("NoRowsIsNotFound", func(t *testing.T) {
		mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT (.+) FROM "leads"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		store := &Postgres{}
		lead, status := store.GetLeadByUniqueFields(1,
			map[string]interface{}{"email": "missing@b.com"})

		assert.Equal(t, http.StatusNotFound, status)
		assert.Nil(t, lead)
	})

	t.Run("EmptyUniqueFieldsRejected", func(t *testing.T) {
		store := &Postgres{}
		_, status := store.GetLeadByUniqueFields(1, nil)
		assert.Equal(t, http.StatusBadRequest, status)

		_, status = store.GetLeadByUniqueFields(0,
			map[string]interface{}{"email": "a@b.com"})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestSaveLead(t *testing.T) {
	t.Run("RejectsEmptyProperties", func(t *testing.T) {
		store := &Postgres{}
		status := store.SaveLead(1, &model.Lead{})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("InsertsNewLead", func(t *testing.T) {
		mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "leads"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
		mock.ExpectCommit()

		props := map[string]interface{}{"email": "a@b.com"}
		encoded, _ := U.EncodeToPostgresJsonb(&props)

		store := &Postgres{}
		status := store.SaveLead(1, &model.Lead{Properties: encoded})

		assert.Equal(t, http.StatusAccepted, status)
		assert.Nil(t, mock.ExpectationsWereMet())
	})
}

func TestGetUserByEmail(t *testing.T) {
	mock := setupMockDB(t)
	rows := sqlmock.NewRows([]string{"id", "project_id", "email"}).
		AddRow(42, 1, "owner@example.com")
	mock.ExpectQuery(`SELECT (.+) FROM "users"`).
		WithArgs(uint64(1), "owner@example.com").
		WillReturnRows(rows)

	store := &Postgres{}
	user, status := store.GetUserByEmail(1, "owner@example.com")

	assert.Equal(t, http.StatusFound, status)
	assert.Equal(t, uint64(42), user.ID)
}

func TestUpsertIntegrationEntity(t *testing.T) {
	t.Run("CreatesMissingLink", func(t *testing.T) {
		mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT (.+) FROM "integration_entities"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "integration_entities"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
		mock.ExpectCommit()

		store := &Postgres{}
		status := store.UpsertIntegrationEntity(1, &model.IntegrationEntity{
			Integration: "Salesforce", ExternalType: "Lead", ExternalID: "ext-1",
			InternalType: model.InternalTypeLead, InternalID: 9})

		assert.Equal(t, http.StatusCreated, status)
		assert.Nil(t, mock.ExpectationsWereMet())
	})

	t.Run("ExistingLinkBumpsLastSyncDate", func(t *testing.T) {
		mock := setupMockDB(t)
		rows := sqlmock.NewRows([]string{"id", "last_sync_date"}).
			AddRow(5, time.Now().Add(-time.Hour))
		mock.ExpectQuery(`SELECT (.+) FROM "integration_entities"`).
			WillReturnRows(rows)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "integration_entities" SET "last_sync_date"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		store := &Postgres{}
		entity := &model.IntegrationEntity{
			Integration: "Salesforce", ExternalType: "Lead", ExternalID: "ext-1",
			InternalType: model.InternalTypeLead, InternalID: 9}
		status := store.UpsertIntegrationEntity(1, entity)

		assert.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, uint64(5), entity.ID)
		assert.Nil(t, mock.ExpectationsWereMet())
	})

	t.Run("IncompleteLinkRejected", func(t *testing.T) {
		store := &Postgres{}
		status := store.UpsertIntegrationEntity(1, &model.IntegrationEntity{})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}
