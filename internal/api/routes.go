// routes.go - Route registration helpers
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tldr-app/uploader/internal/config"
	"github.com/tldr-app/uploader/internal/storage"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    storage.Store
	Sessions SessionManager
	History  SummaryHistory // nil when the summary cache is disabled

	// BaseContext outlives requests; background submits derive from it so
	// that shutdown cancels them.
	BaseContext context.Context

	CookieName   string
	CookieSecure bool
	Version      string
	Logger       *zap.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Page      PageHandler
	Uploader  UploaderHandler
	Stream    StateStreamHandler
	Summaries SummaryHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if deps.CookieName == "" {
		deps.CookieName = "tldr_session"
	}

	sessions := &sessionResolver{
		sessions:   deps.Sessions,
		cookieName: deps.CookieName,
		secure:     deps.CookieSecure,
	}
	logger := deps.Logger.Named("api")

	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Sessions, deps.Store),
		Page:      NewPageHandler(sessions, deps.Version),
		Uploader:  NewUploaderHandler(deps.Store, sessions, deps.BaseContext, logger),
		Stream:    NewStateStreamHandler(sessions, logger),
		Summaries: NewSummaryHandler(deps.History),
	}
}

// RegisterRoutes registers all routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/", handlers.Page.HandleIndex)
	e.POST("/select", handlers.Uploader.HandleSelect)
	e.POST("/submit", handlers.Uploader.HandleSubmit)

	apiGroup := e.Group("/api")
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/state", handlers.Uploader.HandleState)
	apiGroup.GET("/ws", handlers.Stream.HandleStateStream)
	apiGroup.GET("/summaries", handlers.Summaries.HandleRecentSummaries)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg config.ServerConfig, logger *zap.Logger) {
	e.HTTPErrorHandler = NewErrorHandler(cfg.ShowErrorDetails)

	if cfg.EnableRequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return path == "/api/health" || strings.HasPrefix(path, "/static/")
			},
			LogURI:     true,
			LogStatus:  true,
			LogMethod:  true,
			LogLatency: true,
			LogError:   true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				fields := []zap.Field{
					zap.String("method", v.Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
					zap.Duration("latency", v.Latency),
				}
				if v.Error != nil {
					logger.Warn("request", append(fields, zap.Error(v.Error))...)
					return nil
				}
				logger.Info("request", fields...)
				return nil
			},
		}))
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
			return err
		},
	}))

	if cfg.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				// The socket hijacks the connection and /submit needs the
				// raw writer to lift its write deadline.
				path := c.Request().URL.Path
				return path == "/api/ws" || path == "/submit"
			},
		}))
	}

	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	if cfg.EnableCORS {
		origins := strings.Split(cfg.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		// Browsers reject credentialed responses for a wildcard origin, so
		// the session cookie is only shared with explicitly listed origins.
		allowCredentials := true
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
			allowCredentials = false
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			AllowCredentials: allowCredentials,
			MaxAge:           int((12 * time.Hour).Seconds()),
		}))
	}
}
