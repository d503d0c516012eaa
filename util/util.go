package util

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jinzhu/gorm/dialects/postgres"
	log "github.com/sirupsen/logrus"
)

// PropertiesMap - Common free form properties type.
type PropertiesMap map[string]interface{}

func GetPropertyValueAsString(value interface{}) string {
	if value == nil {
		return ""
	}

	switch valueType := value.(type) {
	case float32, float64:
		return fmt.Sprintf("%0.0f", value)
	case int, int32, int64:
		return fmt.Sprintf("%v", value)
	case string:
		return value.(string)
	case bool:
		return strconv.FormatBool(value.(bool))
	default:
		log.Error("Invalid value type on GetPropertyValueAsString : ", valueType)
		return ""
	}
}

// IsEmptyValue - Treats nil, empty string and zero as no value,
// for unique identifier checks.
func IsEmptyValue(value interface{}) bool {
	if value == nil {
		return true
	}

	switch v := value.(type) {
	case string:
		return v == ""
	case float64:
		return v == 0
	case int:
		return v == 0
	case int64:
		return v == 0
	}

	return false
}

func IsEmptyPostgresJsonb(jsonb *postgres.Jsonb) bool {
	return jsonb == nil || string((*jsonb).RawMessage) == ""
}

func EncodeToPostgresJsonb(sourceMap *map[string]interface{}) (*postgres.Jsonb, error) {
	sourceJsonBytes, err := json.Marshal(sourceMap)
	if err != nil {
		return nil, err
	}

	return &postgres.Jsonb{RawMessage: json.RawMessage(sourceJsonBytes)}, nil
}

func DecodePostgresJsonb(sourceJsonb *postgres.Jsonb) (*map[string]interface{}, error) {
	sourceMap := make(map[string]interface{})
	if IsEmptyPostgresJsonb(sourceJsonb) {
		return &sourceMap, nil
	}

	err := json.Unmarshal(sourceJsonb.RawMessage, &sourceMap)
	if err != nil {
		return nil, err
	}

	return &sourceMap, nil
}
