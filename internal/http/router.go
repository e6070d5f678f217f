// Package httpapi binds the Gin engine to the case lifecycle: the middleware
// chain, the operational endpoints (/health, /metrics, /ws, /swagger) and the
// case API under the configured base path.
//
// Middleware order:
//
//	otelgin → RequestID → Identity → RedactingLogger → Recovery → body cap →
//	Metrics → IdempotencyValidator → RateLimiter → gzip → CORS → SecurityHeaders
//
// Identity runs before the logger and the limiter because both key on the
// actor. The idempotency validator runs before the limiter so replays of a
// completed interaction skip it.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-rescue-dispatch/docs"
	"github.com/tbourn/go-rescue-dispatch/internal/config"
	"github.com/tbourn/go-rescue-dispatch/internal/http/handlers"
	"github.com/tbourn/go-rescue-dispatch/internal/http/middleware"
	"github.com/tbourn/go-rescue-dispatch/internal/notify"
	"github.com/tbourn/go-rescue-dispatch/internal/repo"
	"github.com/tbourn/go-rescue-dispatch/internal/services"
)

const (
	defaultMaxBody = 1 << 20
	corsMaxAge     = 12 * time.Hour
	docsPrefix     = "/swagger"
)

// Deps are the long-lived components the routes are bound to.
type Deps struct {
	// DB stores interaction idempotency records. Nil disables replays.
	DB *gorm.DB
	// Store is the in-memory case registry.
	Store *repo.CaseStore
	// Notifier receives lifecycle commands (usually a notify.Multi).
	Notifier services.Notifier
	// Hub serves the live case feed at /ws. Nil disables the route.
	Hub *notify.Hub
}

// RegisterRoutes installs the middleware chain and every route on r, and
// returns the CaseService it built.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) *services.CaseService {
	r.HandleMethodNotAllowed = true

	var idem *repo.IdempotencyRepo
	if deps.DB != nil {
		idem = &repo.IdempotencyRepo{DB: deps.DB, TTL: cfg.IdempotencyTTL}
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.Identity(cfg.PrivilegedRoles),
		middleware.RedactingLogger(middleware.RedactOptions{MaskHeaders: []string{"X-Bridge-Signature"}}),
		middleware.Recovery(),
		limitBody(maxBody),
		middleware.Metrics(),
	)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, replayLookup(idem)),
		middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler(),
		// hijacked feed connections cannot be wrapped
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})),
	)
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		CacheControl: true,
		EnablePolicy: true,
		DocsPrefix:   docsPrefix,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.WS.Enabled && deps.Hub != nil {
		r.GET("/ws", gin.WrapH(deps.Hub))
	}
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET(docsPrefix+"/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	svc := services.NewCaseService(deps.Store, deps.Notifier)
	if cfg.MaxShortRunes > 0 {
		svc.MaxShortRunes = cfg.MaxShortRunes
	}
	if cfg.MaxLongRunes > 0 {
		svc.MaxLongRunes = cfg.MaxLongRunes
	}

	var store handlers.IdempotencyStore
	if idem != nil {
		store = *idem
	}
	mountCaseAPI(groupWithPrefix(r, cfg.APIBasePath), handlers.New(svc, store, deps.Store))
	return svc
}

func mountCaseAPI(api *gin.RouterGroup, h *handlers.Handlers) {
	api.POST("/cases", h.SubmitCase)
	api.GET("/cases", h.ListCases)
	api.GET("/cases/stats", h.CaseStats)
	api.GET("/cases/search", h.SearchCases)
	api.GET("/cases/:id", h.GetCase)
	api.POST("/cases/:id/claim", h.ClaimCase)
	api.POST("/cases/:id/resolve", h.ResolveCase)
}

// replayLookup adapts the idempotency repo to the validator. A missing
// record is a miss, not an error.
func replayLookup(idem *repo.IdempotencyRepo) middleware.IdempotencyLookup {
	if idem == nil {
		return nil
	}
	return func(ctx context.Context, userID, target, key string, now time.Time) (bool, error) {
		rec, err := idem.Lookup(ctx, userID, target, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return rec != nil, err
	}
}

// corsMiddleware allows every origin when none are configured (dashboards
// and the bridge run on arbitrary hosts in dev), otherwise echoes allowlisted
// origins. Credentials are never allowed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			middleware.HeaderUserID, middleware.HeaderUserRoles, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"},
		MaxAge:        corsMaxAge,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// gin-contrib/cors skips requests without Origin; health checks and
		// curl still get the header.
		star := func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		}
		return []gin.HandlerFunc{star, cors.New(base)}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	echo := func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		c.Next()
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{echo, cors.New(base)}
}

// limitBody caps request bodies at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
