package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/opportunities"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/syncjob"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-signing-secret"
	testIssuer        = "tauth"
	testCookieName    = "app_session"
)

type sequentialIDs struct {
	prefix string
	next   int
}

func (g *sequentialIDs) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%03d", g.prefix, g.next), nil
}

type stubSource struct {
	records []catalog.Record
	err     error
}

func (s *stubSource) FetchAll(context.Context) ([]catalog.Record, error) {
	return s.records, s.err
}

type testApp struct {
	server   *httptest.Server
	db       *gorm.DB
	source   *stubSource
	runner   *syncjob.Runner
	events   *CatalogEvents
	handler  http.Handler
	catalog  *opportunities.Service
	accounts *users.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "server.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := opportunities.Migrate(db); err != nil {
		t.Fatalf("failed to migrate catalog schema: %v", err)
	}
	if err := users.Migrate(db); err != nil {
		t.Fatalf("failed to migrate account schema: %v", err)
	}
	if err := syncjob.Migrate(db); err != nil {
		t.Fatalf("failed to migrate run schema: %v", err)
	}

	catalogService, err := opportunities.NewService(opportunities.ServiceConfig{
		Database:   db,
		IDProvider: &sequentialIDs{prefix: "opp"},
	})
	if err != nil {
		t.Fatalf("failed to create catalog service: %v", err)
	}
	accountService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create account service: %v", err)
	}

	events := NewCatalogEvents()
	source := &stubSource{}
	runner, err := syncjob.NewRunner(syncjob.RunnerConfig{
		Database:     db,
		Source:       source,
		Synchronizer: catalogService,
		Notifier:     events,
		IDProvider:   &sequentialIDs{prefix: "run"},
	})
	if err != nil {
		t.Fatalf("failed to create runner: %v", err)
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to create session validator: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		SessionValidator:  validator,
		Accounts:          accountService,
		Catalog:           catalogService,
		SyncRunner:        runner,
		Events:            events,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testApp{
		server:   server,
		db:       db,
		source:   source,
		runner:   runner,
		events:   events,
		handler:  handler,
		catalog:  catalogService,
		accounts: accountService,
	}
}

func (a *testApp) seed(t *testing.T, records ...catalog.Record) {
	t.Helper()
	a.source.records = records
	a.source.err = nil
	if _, err := a.runner.Run(context.Background()); err != nil {
		t.Fatalf("seed sync failed: %v", err)
	}
}

func catalogRecord(title, organization string, categories ...string) catalog.Record {
	activities := make([]catalog.Activity, 0, len(categories))
	for _, category := range categories {
		activities = append(activities, catalog.Activity{Category: category})
	}
	return catalog.Record{
		Title:        title,
		Description:  title + " description",
		Organization: catalog.Organization{Name: organization},
		Activities:   activities,
	}
}

func signSession(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		UserID:    userID,
		UserEmail: userID + "@example.com",
		UserRoles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign session: %v", err)
	}
	return signed
}

func (a *testApp) do(t *testing.T, method, path, session string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, http.NoBody)
	if session != "" {
		request.AddCookie(&http.Cookie{Name: testCookieName, Value: session})
	}
	recorder := httptest.NewRecorder()
	a.handler.ServeHTTP(recorder, request)
	return recorder
}
