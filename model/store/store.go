package store

import (
	"crmbridge/model/model"
	storePostgres "crmbridge/model/store/postgres"
)

// GetStore - Returns the active store implementation. Sync engine
// components take model.Store explicitly, so callers may substitute
// their own.
func GetStore() model.Store {
	var store model.Store
	store = &storePostgres.Postgres{}
	return store
}
