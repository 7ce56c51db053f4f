// Package httpapi exposes the shortener service over HTTP with fiber.
package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/logger"
	"github.com/MagnunAVF/shortener-core/internal/metrics"
	"github.com/MagnunAVF/shortener-core/internal/shortener"
)

// OwnerHeader carries the caller identity set by the gateway in front of us.
const OwnerHeader = "X-Owner-ID"

type Server struct {
	svc      *shortener.Service
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

func New(svc *shortener.Service, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	return &Server{svc: svc, metrics: m, gatherer: gatherer}
}

// App builds the fiber app with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	app.Use(s.instrument())
	app.Use(logger.FiberMiddleware())
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api")
	api.Post("/shorten", s.handleShorten)
	api.Post("/bulk-shorten", s.handleBulkShorten)
	api.Get("/resolve/:code", s.handleResolve)
	api.Get("/links", s.handleListLinks)
	api.Patch("/links/:code", s.handleUpdateLink)
	api.Delete("/links/:code", s.handleDeleteLink)
	api.Get("/links/:code/analytics", s.handleAnalytics)
	api.Get("/links/:code/qrcode", s.handleQRCode)
	api.Get("/stats", s.handleStats)

	app.Get("/:code", s.handleRedirect)
	return app
}

func (s *Server) instrument() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		s.metrics.HTTPInFlight.Inc()
		defer s.metrics.HTTPInFlight.Dec()

		err := c.Next()

		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "/" {
			route = r.Path
		}
		s.metrics.HTTPRequests.WithLabelValues(route, c.Method(), strconv.Itoa(c.Response().StatusCode())).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route, c.Method()).Observe(time.Since(start).Seconds())
		return err
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "internal error"

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		status, msg = fe.Code, fe.Message
	case errors.Is(err, internal.ErrNotFound):
		status, msg = fiber.StatusNotFound, "short url not found"
	case errors.Is(err, internal.ErrExpired):
		status, msg = fiber.StatusGone, "short url has expired"
	case errors.Is(err, internal.ErrInvalidURL),
		errors.Is(err, internal.ErrUnsafeURL),
		errors.Is(err, internal.ErrInvalidCode),
		errors.Is(err, internal.ErrInvalidExpiration),
		errors.Is(err, internal.ErrTooManyItems):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, internal.ErrCodeTaken):
		status, msg = fiber.StatusConflict, err.Error()
	case errors.Is(err, internal.ErrNotOwner):
		status, msg = fiber.StatusForbidden, "link belongs to another owner"
	case errors.Is(err, internal.ErrCapacityExhausted), errors.Is(err, internal.ErrStoreUnavailable):
		status, msg = fiber.StatusServiceUnavailable, "service temporarily unavailable"
	}
	if status >= fiber.StatusInternalServerError {
		logger.FromContext(c.UserContext()).Error("Request failed", "err", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// requestMeta copies the click details out of the request. fiber reuses its
// buffers once the handler returns, and the click is recorded after that.
func requestMeta(c *fiber.Ctx) internal.RequestMeta {
	return internal.RequestMeta{
		RemoteAddr:   c.Context().RemoteAddr().String(),
		ForwardedFor: utils.CopyString(c.Get(fiber.HeaderXForwardedFor)),
		UserAgent:    utils.CopyString(c.Get(fiber.HeaderUserAgent)),
		Referer:      utils.CopyString(c.Get(fiber.HeaderReferer)),
		Country:      utils.CopyString(c.Get("CF-IPCountry")),
		City:         utils.CopyString(c.Get("CF-IPCity")),
	}
}

func owner(c *fiber.Ctx) string {
	return c.Get(OwnerHeader)
}

func requireOwner(c *fiber.Ctx) (string, error) {
	o := owner(c)
	if o == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, OwnerHeader+" header is required")
	}
	return o, nil
}
