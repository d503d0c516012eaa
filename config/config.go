package config

import (
	"fmt"

	"github.com/gomodule/redigo/redis"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	log "github.com/sirupsen/logrus"
)

const DEVELOPMENT = "development"
const STAGING = "staging"
const PRODUCTION = "production"

type DBConf struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

var PostgresDefaultDBParams = DBConf{
	Host:     "localhost",
	Port:     5432,
	User:     "autometa",
	Name:     "autometa",
	Password: "@ut0me7a",
}

type Configuration struct {
	Env       string `json:"env"`
	Port      int    `json:"port"`
	DBInfo    DBConf `json:"db"`
	RedisHost string `json:"redis_host"`
	RedisPort int    `json:"redis_port"`
	// APIDomain - Host serving the app UI. Used to build
	// record URLs pushed to the CRM as timeline entries.
	APIDomain string `json:"api_domain"`
}

type Services struct {
	Db        *gorm.DB
	RedisPool *redis.Pool
}

var configuration *Configuration
var services *Services = &Services{}
var initiated bool = false

func initLogging() {
	// Log as JSON instead of the default ASCII formatter.
	log.SetFormatter(&log.JSONFormatter{})

	if IsDevelopment() {
		log.SetLevel(log.DebugLevel)
	}
}

func InitDB(dbConf DBConf) error {
	db, err := gorm.Open("postgres", fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s password=%s sslmode=disable",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Name, dbConf.Password))
	if err != nil {
		log.WithError(err).Error("Failed Db Initialization")
		return err
	}

	// Connection Pooling and Logging.
	db.DB().SetMaxIdleConns(10)
	db.DB().SetMaxOpenConns(100)
	db.LogMode(IsDevelopment())

	services.Db = db
	log.Info("Db Service initialized")
	return nil
}

func InitRedisConnection(host string, port int) {
	services.RedisPool = &redis.Pool{
		MaxIdle:   10,
		MaxActive: 100,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
		},
	}
	log.Info("Redis Service initialized")
}

// InitConf - Initializes config, logging and all services.
func InitConf(config *Configuration) error {
	if initiated {
		return fmt.Errorf("config already initialized")
	}

	configuration = config
	initLogging()

	if err := InitDB(config.DBInfo); err != nil {
		return err
	}

	InitRedisConnection(config.RedisHost, config.RedisPort)

	initiated = true
	return nil
}

func GetConfig() *Configuration {
	return configuration
}

func GetServices() *Services {
	return services
}

func GetCacheRedisConnection() redis.Conn {
	return services.RedisPool.Get()
}

// SetServicesDb - Overrides the db connection. Used by store
// tests running against sqlmock.
func SetServicesDb(db *gorm.DB) {
	services.Db = db
}

func IsDevelopment() bool {
	return configuration == nil || configuration.Env == DEVELOPMENT
}

func GetAPIDomain() string {
	if configuration == nil {
		return ""
	}
	return configuration.APIDomain
}
