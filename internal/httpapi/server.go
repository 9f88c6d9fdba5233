// Package httpapi serves the REST API, the Prometheus endpoint and the MCP
// transport on one echo instance.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/bull/robotics-tutor/internal/apperr"
	"github.com/bull/robotics-tutor/internal/auth"
	"github.com/bull/robotics-tutor/internal/chat"
	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/metrics"
)

// AuthService handles account endpoints.
type AuthService interface {
	Signup(ctx context.Context, req auth.SignupRequest) (*auth.Session, error)
	Login(ctx context.Context, req auth.LoginRequest) (*auth.Session, error)
	CurrentUser(ctx context.Context, userID string) (*database.User, error)
	UpdatePreferences(ctx context.Context, userID, language, theme string) (*database.User, error)
}

// ChatService handles the tutor endpoints.
type ChatService interface {
	Answer(ctx context.Context, req chat.Request) (*chat.Result, error)
	StartSession() chat.Session
	History(ctx context.Context, userID, sessionID string) (*chat.SessionHistory, error)
	Rate(ctx context.Context, userID, messageID string, req chat.RateRequest) (*chat.Rating, error)
}

// Catalog reads modules and chapters.
type Catalog interface {
	ListModules(ctx context.Context) ([]*database.Module, error)
	GetModuleBySlug(ctx context.Context, slug string) (*database.Module, error)
	ListChapters(ctx context.Context, moduleSlug string) ([]*database.Chapter, error)
	GetChapter(ctx context.Context, id string) (*database.Chapter, error)
}

// ProgressStore persists chapter progress.
type ProgressStore interface {
	Upsert(ctx context.Context, p *database.ChapterProgress) (*database.ChapterProgress, error)
	ListByUser(ctx context.Context, userID string) ([]*database.ChapterProgress, error)
}

// Deps wires the API. MCP and Metrics are optional.
type Deps struct {
	AppName     string
	Version     string
	Environment string
	CORSOrigins []string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Tokens      *auth.TokenIssuer
	Auth        AuthService
	Chat        ChatService
	Catalog     Catalog
	Progress    ProgressStore
	Checks      []HealthCheck
	MCP         http.Handler
}

// New builds the echo instance with all routes registered.
func New(deps Deps) *echo.Echo {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	api := e.Group("/api")
	requireUser := auth.Middleware(deps.Tokens)

	h := &healthHandler{appName: deps.AppName, version: deps.Version, environment: deps.Environment, checks: deps.Checks}
	h.register(api.Group("/health"))

	ah := &authHandler{svc: deps.Auth}
	ah.register(api.Group("/auth"), requireUser)

	ch := &catalogHandler{catalog: deps.Catalog}
	ch.register(api)

	ph := &progressHandler{store: deps.Progress, catalog: deps.Catalog}
	ph.register(api.Group("/progress", requireUser))

	th := &chatHandler{svc: deps.Chat}
	th.register(api.Group("/chat", requireUser))

	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}
	if deps.MCP != nil {
		e.Any("/mcp", echo.WrapHandler(deps.MCP))
	}
	return e
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	})
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Code    int            `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		body := toErrorBody(err)
		if body.Code >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", body.Code,
				"error", err)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(body.Code)
			return
		}
		_ = c.JSON(body.Code, body)
	}
}

func toErrorBody(err error) ErrorBody {
	if ae, ok := apperr.As(err); ok {
		return ErrorBody{
			Error:   ae.Kind.Code(),
			Message: ae.Message,
			Code:    ae.Kind.HTTPStatus(),
			Details: ae.Details,
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return ErrorBody{Error: codeForStatus(he.Code), Message: msg, Code: he.Code}
	}

	return ErrorBody{
		Error:   apperr.KindInternal.Code(),
		Message: "An unexpected error occurred",
		Code:    http.StatusInternalServerError,
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperr.KindValidation.Code()
	case http.StatusUnauthorized:
		return apperr.KindAuthentication.Code()
	case http.StatusForbidden:
		return apperr.KindAuthorization.Code()
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.KindNotFound.Code()
	case http.StatusConflict:
		return apperr.KindConflict.Code()
	case http.StatusServiceUnavailable:
		return apperr.KindServiceUnavailable.Code()
	}
	if status >= http.StatusInternalServerError {
		return apperr.KindInternal.Code()
	}
	return http.StatusText(status)
}

// bind decodes the request body, reporting failures as validation errors.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return apperr.Validation("Invalid request body", map[string]any{"reason": err.Error()})
	}
	return nil
}
