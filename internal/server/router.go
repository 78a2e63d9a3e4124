package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/opportunities"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/syncjob"
	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	accountIDContextKey      = "volunteer_account_id"
	sessionClaimsContextKey  = "volunteer_session_claims"
	syncAdminRole            = "admin"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingAccounts         = errors.New("account resolver dependency required")
	errMissingCatalog          = errors.New("catalog dependency required")
	errMissingSyncRunner       = errors.New("sync runner dependency required")
	errMissingEvents           = errors.New("catalog events dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type AccountResolver interface {
	ResolveAccount(ctx context.Context, claims auth.SessionClaims) (users.Account, error)
}

// Catalog is the read side of the opportunity store plus account bookmarks.
type Catalog interface {
	Categories(ctx context.Context) ([]opportunities.Category, error)
	OpportunitiesByCategory(ctx context.Context, name string) ([]opportunities.Opportunity, error)
	OpportunitiesByCategorySlug(ctx context.Context, slug string) (opportunities.Category, []opportunities.Opportunity, error)
	OpportunityByID(ctx context.Context, id string) (opportunities.Opportunity, error)
	SaveForUser(ctx context.Context, accountID, opportunityID string) error
	RemoveForUser(ctx context.Context, accountID, opportunityID string) error
	SavedForUser(ctx context.Context, accountID string) ([]opportunities.Opportunity, error)
}

type SyncRunner interface {
	Run(ctx context.Context) (opportunities.SyncReport, error)
	LastRun(ctx context.Context) (syncjob.SyncRun, error)
}

type Dependencies struct {
	SessionValidator  SessionValidator
	Accounts          AccountResolver
	Catalog           Catalog
	SyncRunner        SyncRunner
	Events            *CatalogEvents
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Accounts == nil {
		return nil, errMissingAccounts
	}
	if deps.Catalog == nil {
		return nil, errMissingCatalog
	}
	if deps.SyncRunner == nil {
		return nil, errMissingSyncRunner
	}
	if deps.Events == nil {
		return nil, errMissingEvents
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	// Category names are catalog-supplied and may contain an escaped "/".
	router.UseRawPath = true
	router.UnescapePathValues = true
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:  deps.SessionValidator,
		accounts:  deps.Accounts,
		catalog:   deps.Catalog,
		runner:    deps.SyncRunner,
		events:    deps.Events,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/categories", handler.handleCategories)
	router.GET("/categories/:name/opportunities", handler.handleCategoryOpportunities)
	router.GET("/categories/by-slug/:slug/opportunities", handler.handleCategorySlugOpportunities)
	router.GET("/opportunities/:id", handler.handleOpportunity)
	router.GET("/sync/status", handler.handleSyncStatus)
	router.GET("/events", handler.handleEvents)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me/saved", handler.handleListSaved)
	protected.PUT("/me/saved/:id", handler.handleSave)
	protected.DELETE("/me/saved/:id", handler.handleRemoveSaved)
	protected.POST("/sync", handler.handleTriggerSync)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions  SessionValidator
	accounts  AccountResolver
	catalog   Catalog
	runner    SyncRunner
	events    *CatalogEvents
	heartbeat time.Duration
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleCategories(c *gin.Context) {
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categoriesResponsePayload{Categories: newCategoryPayloads(categories)})
}

func (h *httpHandler) handleCategoryOpportunities(c *gin.Context) {
	name := c.Param("name")
	values, err := h.catalog.OpportunitiesByCategory(c.Request.Context(), name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categoryOpportunitiesPayload{
		Category:      name,
		Opportunities: newOpportunityPayloads(values),
	})
}

func (h *httpHandler) handleCategorySlugOpportunities(c *gin.Context) {
	category, values, err := h.catalog.OpportunitiesByCategorySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categoryOpportunitiesPayload{
		Category:      category.Name,
		Slug:          category.Slug,
		Opportunities: newOpportunityPayloads(values),
	})
}

func (h *httpHandler) handleOpportunity(c *gin.Context) {
	opportunity, err := h.catalog.OpportunityByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOpportunityPayload(opportunity))
}

func (h *httpHandler) handleListSaved(c *gin.Context) {
	values, err := h.catalog.SavedForUser(c.Request.Context(), c.GetString(accountIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, savedOpportunitiesPayload{Opportunities: newOpportunityPayloads(values)})
}

func (h *httpHandler) handleSave(c *gin.Context) {
	if err := h.catalog.SaveForUser(c.Request.Context(), c.GetString(accountIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRemoveSaved(c *gin.Context) {
	if err := h.catalog.RemoveForUser(c.Request.Context(), c.GetString(accountIDContextKey), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSyncStatus(c *gin.Context) {
	run, err := h.runner.LastRun(c.Request.Context())
	if errors.Is(err, syncjob.ErrNoRuns) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_sync_runs"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load last sync run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, newSyncRunPayload(run))
}

func (h *httpHandler) handleTriggerSync(c *gin.Context) {
	claims, _ := c.Get(sessionClaimsContextKey)
	sessionClaims, ok := claims.(auth.SessionClaims)
	if !ok || !sessionClaims.HasRole(syncAdminRole) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	report, err := h.runner.Run(c.Request.Context())
	if err != nil {
		code := syncjob.ErrorCode(err)
		var fetchErr *catalog.FetchError
		if errors.As(err, &fetchErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "catalog_fetch_failed", "code": code})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_failed", "code": code})
		return
	}
	c.JSON(http.StatusOK, newSyncReportPayload(report))
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event := <-stream:
			c.SSEvent(event.EventType, catalogEventPayload{
				RunID:     event.RunID,
				Report:    newSyncReportPayload(event.Report),
				Timestamp: event.Timestamp,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(eventHeartbeat, gin.H{"timestamp": tick.UTC()})
			return true
		}
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	account, err := h.accounts.ResolveAccount(c.Request.Context(), claims)
	if errors.Is(err, users.ErrInvalidIdentity) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("failed to resolve account", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.Set(sessionClaimsContextKey, claims)
	c.Set(accountIDContextKey, account.ID)
	c.Next()
}

// respondError maps catalog errors onto statuses. Service errors were already
// logged by the service.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, opportunities.ErrCategoryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "category_not_found"})
	case errors.Is(err, opportunities.ErrOpportunityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "opportunity_not_found"})
	case errors.Is(err, opportunities.ErrInvalidIdentifier):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_identifier"})
	default:
		var serviceErr *opportunities.ServiceError
		if errors.As(err, &serviceErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": serviceErr.Code()})
			return
		}
		h.logger.Error("unexpected catalog error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
