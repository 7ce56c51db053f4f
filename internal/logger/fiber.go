package logger

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// FiberMiddleware tags each request with a request id, stores a request
// scoped logger in the user context and logs the outcome once the chain returns.
func FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(RequestIDHeader, reqID)
		ctx := WithRequestID(IntoContext(c.UserContext(), Default()), reqID)
		c.SetUserContext(ctx)

		err := c.Next()
		if err != nil {
			// let the app error handler pick the final status before we log it
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		route := ""
		if r := c.Route(); r != nil {
			route = r.Path
		}
		attrs := []any{
			"status", c.Response().StatusCode(),
			"method", c.Method(),
			"path", c.OriginalURL(),
			"route", route,
			"ip", c.IP(),
			"user_agent", c.Get(fiber.HeaderUserAgent),
			"latency_ms", float64(time.Since(start).Microseconds()) / 1000.0,
		}

		l := FromContext(ctx)
		if err != nil {
			l.Error("http request", append(attrs, "err", err.Error())...)
			return nil
		}
		l.Info("http request", attrs...)
		return nil
	}
}
