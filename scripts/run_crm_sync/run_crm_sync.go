package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/now"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	C "crmbridge/config"
	"crmbridge/crm_sync"
	"crmbridge/handler"
	"crmbridge/integration"
	_ "crmbridge/integration/connectwise"
	_ "crmbridge/integration/dynamics"
	_ "crmbridge/integration/salesforce"
	"crmbridge/model/model"
	"crmbridge/model/store"
)

func main() {
	envFlag := flag.String("env", C.DEVELOPMENT, "Environment. Could be development|staging|production.")
	port := flag.Int("port", 8090, "Port for the webhook listener. 0 disables it.")
	dbHost := flag.String("db_host", C.PostgresDefaultDBParams.Host, "")
	dbPort := flag.Int("db_port", C.PostgresDefaultDBParams.Port, "")
	dbUser := flag.String("db_user", C.PostgresDefaultDBParams.User, "")
	dbName := flag.String("db_name", C.PostgresDefaultDBParams.Name, "")
	dbPass := flag.String("db_pass", C.PostgresDefaultDBParams.Password, "")
	redisHost := flag.String("redis_host", "localhost", "")
	redisPort := flag.Int("redis_port", 6379, "")
	apiDomain := flag.String("api_domain", "", "Host app domain for timeline urls.")
	integrations := flag.String("integrations", "", "Comma separated integration names. Empty runs all registered.")
	lookbackDays := flag.Int("lookback_days", 1, "Pull window lookback in days, from start of day.")
	schedule := flag.String("schedule", "", "Cron schedule, i.e '@every 30m'. Empty runs once and exits.")
	flag.Parse()

	config := &C.Configuration{
		Env:  *envFlag,
		Port: *port,
		DBInfo: C.DBConf{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Name:     *dbName,
			Password: *dbPass,
		},
		RedisHost: *redisHost,
		RedisPort: *redisPort,
		APIDomain: *apiDomain,
	}
	if err := C.InitConf(config); err != nil {
		log.WithError(err).Fatal("Failed to initialize config")
	}

	names := integration.RegisteredIntegrations()
	if *integrations != "" {
		names = strings.Split(*integrations, ",")
	}

	if *port != 0 {
		go func() {
			r := gin.Default()
			handler.InitRoutes(r)
			if err := r.Run(fmt.Sprintf(":%d", *port)); err != nil {
				log.WithError(err).Fatal("Webhook listener failed")
			}
		}()
	}

	runAll := func() {
		startDate := now.New(time.Now().UTC().AddDate(0, 0, -*lookbackDays)).BeginningOfDay()
		endDate := time.Now().UTC()

		for _, name := range names {
			runIntegration(strings.TrimSpace(name), startDate, endDate)
		}
	}

	if *schedule == "" {
		runAll()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, runAll); err != nil {
		log.WithError(err).Fatal("Invalid cron schedule")
	}
	log.WithField("schedule", *schedule).Info("Starting scheduled sync")
	c.Run()
}

// runIntegration runs pull, push and activity sync for every project
// with the integration enabled.
func runIntegration(integrationName string, startDate, endDate time.Time) {
	logCtx := log.WithField("integration", integrationName)

	settings, errCode := store.GetStore().GetEnabledIntegrationSettings(integrationName)
	if errCode == http.StatusNotFound {
		logCtx.Info("No projects enabled for integration.")
		return
	}
	if errCode != http.StatusFound {
		logCtx.Error("Failed to get enabled integration settings.")
		return
	}

	for i := range settings {
		runProject(&settings[i], startDate, endDate)
	}
}

func runProject(setting *model.IntegrationSetting, startDate, endDate time.Time) {
	logCtx := log.WithFields(log.Fields{"project_id": setting.ProjectID,
		"integration": setting.Name})

	featureSettings, err := setting.GetFeatureSettings()
	if err != nil {
		logCtx.WithError(err).Error("Failed to decode feature settings.")
		return
	}

	var creds integration.Credentials
	if setting.Credentials != nil {
		if err := json.Unmarshal(setting.Credentials.RawMessage, &creds); err != nil {
			logCtx.WithError(err).Error("Failed to decode integration credentials.")
			return
		}
	}

	client, err := integration.NewClient(setting.Name, setting.ProjectID, creds, *featureSettings)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build integration client.")
		return
	}

	orchestrator := crm_sync.NewOrchestrator(setting.ProjectID, client,
		store.GetStore(), *featureSettings)
	aggregator := crm_sync.NewAggregator(store.GetStore())

	query := integration.FetchQuery{StartDate: startDate, EndDate: endDate}
	for _, object := range featureSettings.Objects {
		internalType := model.InternalTypeLead
		if isCompanyObject(object) {
			internalType = model.InternalTypeCompany
		}

		status, _ := orchestrator.GetLeads(object, internalType, query)
		logCtx.WithFields(log.Fields{"object": object, "run_id": status.RunID,
			"status": status.Status}).Info("Pull run finished.")

		if internalType == model.InternalTypeLead {
			activityStatus, err := orchestrator.PushLeadActivity(object, aggregator, startDate, endDate)
			if err != nil {
				logCtx.WithError(err).WithField("object", object).
					Error("Activity push run failed.")
				continue
			}
			logCtx.WithFields(log.Fields{"object": object,
				"run_id": activityStatus.RunID, "status": activityStatus.Status}).
				Info("Activity push run finished.")
		}
	}
}

func isCompanyObject(object string) bool {
	switch strings.ToLower(object) {
	case "account", "accounts", "company", "companies":
		return true
	}
	return false
}
