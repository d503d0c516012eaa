package crm_sync

import (
	"encoding/json"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"

	cacheRedis "crmbridge/cache/redis"
	"crmbridge/integration"
	"crmbridge/model/model"
)

const fieldCatalogCacheExpirySecs = 6 * 60 * 60

// FieldCatalog serves vendor field metadata with a per project, per
// object cache in front of the vendor describe call. Saving a mapping
// invalidates the cache so edits always see fresh metadata.
type FieldCatalog struct {
	client integration.CRMClient
}

func NewFieldCatalog(client integration.CRMClient) *FieldCatalog {
	return &FieldCatalog{client: client}
}

func catalogCacheKey(projectID uint64, integrationName, object string) (*cacheRedis.Key, error) {
	return cacheRedis.NewKey(projectID, "crm_field_catalog:"+integrationName, object)
}

// ListFields returns the writable field definitions for an object,
// from cache when warm.
func (catalog *FieldCatalog) ListFields(projectID uint64, object string) ([]model.FieldDefinition, error) {
	logCtx := log.WithFields(log.Fields{"project_id": projectID,
		"integration": catalog.client.Name(), "object": object})

	key, err := catalogCacheKey(projectID, catalog.client.Name(), object)
	if err != nil {
		return nil, err
	}

	cached, err := cacheRedis.Get(key)
	if err != nil && err != redis.ErrNil {
		logCtx.WithError(err).Error("Failed to read field catalog cache.")
	}
	if cached != "" {
		var fields []model.FieldDefinition
		if err := json.Unmarshal([]byte(cached), &fields); err == nil {
			return fields, nil
		}
		logCtx.Warn("Dropping undecodable field catalog cache entry.")
	}

	fields, err := catalog.client.GetLeadFields(object)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		logCtx.WithError(err).Error("Failed to encode field catalog for cache.")
		return fields, nil
	}
	if err := cacheRedis.Set(key, string(encoded), fieldCatalogCacheExpirySecs); err != nil {
		logCtx.WithError(err).Error("Failed to write field catalog cache.")
	}

	return fields, nil
}

// Invalidate drops the cached metadata for an object.
func (catalog *FieldCatalog) Invalidate(projectID uint64, object string) error {
	key, err := catalogCacheKey(projectID, catalog.client.Name(), object)
	if err != nil {
		return err
	}

	return cacheRedis.Del(key)
}
