package http

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		// Generate or extract request ID
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("X-Request-ID", requestID)
		c.Locals("request_id", requestID)

		return c.Next()
	}
}

// requestID safely extracts the request ID set by RequestIDMiddleware
func requestID(c fiber.Ctx) string {
	if id, ok := c.Locals("request_id").(string); ok {
		return id
	}
	return "unknown"
}

// Locals keys read by the access log
const (
	localDevice   = "device"
	localStep     = "step"
	localProvider = "provider"
	localLanguage = "language"
	localFallback = "fallback"
)

// markResult records the answering provider on the request and response
func markResult(c fiber.Ctx, res *types.ProviderResult) {
	c.Locals(localProvider, string(res.Provider))
	c.Locals(localLanguage, string(res.Language))
	c.Locals(localFallback, !res.IsAIGenerated)
	c.Set("X-Guidance-Provider", string(res.Provider))
}

// LoggingMiddleware writes one access log line per request, tagged with the
// guidance device and step when the route has them and the provider that answered
func LoggingMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		event := log.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = log.Error()
		case c.Locals(localFallback) == true:
			event = log.Warn()
		}

		event = event.
			Str("request_id", requestID(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status)
		if device, ok := c.Locals(localDevice).(string); ok {
			event = event.Str("device", device)
		}
		if step, ok := c.Locals(localStep).(string); ok {
			event = event.Str("step", step)
		}
		if provider, ok := c.Locals(localProvider).(string); ok {
			event = event.Str("provider", provider)
		}
		if lang, ok := c.Locals(localLanguage).(string); ok && lang != "" {
			event = event.Str("language", lang)
		}
		event.Dur("duration", time.Since(start)).Msg("Guidance API request")

		return err
	}
}

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware() fiber.Handler {
	return func(c fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("request_id", requestID(c)).
					Interface("panic", r).
					Msg("Panic recovered")

				err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Internal server error",
					"code":  "internal_error",
				})
			}
		}()

		return c.Next()
	}
}

// CORSMiddleware lets the browser UI call the API from another origin
func CORSMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", "*")
		c.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		c.Set("Access-Control-Max-Age", "86400")

		// Handle preflight
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
