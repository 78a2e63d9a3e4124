package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/config"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/database"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/opportunities"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/server"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/syncjob"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// application holds the collaborators shared by the server and the sync command.
type application struct {
	sqlDB         *sql.DB
	opportunities *opportunities.Service
	accounts      *users.Service
	runner        *syncjob.Runner
	events        *server.CatalogEvents
	logger        *zap.Logger
}

func buildApplication(appConfig config.AppConfig, logger *zap.Logger) (*application, error) {
	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	catalogClient, err := catalog.NewClient(catalog.Config{
		BaseURL:           appConfig.Catalog.BaseURL,
		Timeout:           appConfig.Catalog.Timeout,
		RequestsPerSecond: appConfig.Catalog.RequestsPerSecond,
		MaxRetries:        appConfig.Catalog.MaxRetries,
		MaxPages:          appConfig.Catalog.MaxPages,
		Logger:            logger.Named("catalog"),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	idProvider := opportunities.NewUUIDProvider()
	opportunityService, err := opportunities.NewService(opportunities.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger.Named("opportunities"),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	accountService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger.Named("users"),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	events := server.NewCatalogEvents()
	runner, err := syncjob.NewRunner(syncjob.RunnerConfig{
		Database:     db,
		Source:       catalogClient,
		Synchronizer: opportunityService,
		Notifier:     events,
		IDProvider:   idProvider,
		Clock:        time.Now,
		Logger:       logger.Named("syncjob"),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &application{
		sqlDB:         sqlDB,
		opportunities: opportunityService,
		accounts:      accountService,
		runner:        runner,
		events:        events,
		logger:        logger,
	}, nil
}

func (a *application) httpHandler(appConfig config.AppConfig) (http.Handler, error) {
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.Auth.SigningSecret),
		Issuer:        appConfig.Auth.Issuer,
		CookieName:    appConfig.Auth.CookieName,
	})
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	return server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Accounts:         a.accounts,
		Catalog:          a.opportunities,
		SyncRunner:       a.runner,
		Events:           a.events,
		AllowedOrigins:   appConfig.AllowedOrigins,
		Logger:           a.logger.Named("http"),
	})
}

// startScheduler registers periodic syncs and the optional start-up run. It
// returns nil when scheduling is disabled.
func (a *application) startScheduler(ctx context.Context, syncConfig config.SyncConfig) (*syncjob.Scheduler, error) {
	if syncConfig.OnStart {
		go func() {
			runCtx := ctx
			if syncConfig.Timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(ctx, syncConfig.Timeout)
				defer cancel()
			}
			_, _ = a.runner.Run(runCtx)
		}()
	}

	if syncConfig.Interval <= 0 {
		a.logger.Info("scheduled sync disabled")
		return nil, nil
	}

	scheduler := syncjob.NewScheduler(a.logger.Named("scheduler"))
	if _, err := scheduler.ScheduleRuns(ctx, syncConfig.Interval, syncConfig.Timeout, a.runner); err != nil {
		return nil, err
	}
	scheduler.Start()
	a.logger.Info("scheduled sync enabled", zap.Duration("interval", syncConfig.Interval))
	return scheduler, nil
}

func (a *application) Close() {
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
}
