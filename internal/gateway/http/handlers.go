package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/internal/analytics"
	"github.com/Denis-Chistyakov/Medguide/internal/content"
	"github.com/Denis-Chistyakov/Medguide/internal/orchestrator"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// Orchestrator serves guidance and chat requests
type Orchestrator interface {
	Guidance(ctx context.Context, req types.GuidanceRequest) (*types.ProviderResult, error)
	Chat(ctx context.Context, req types.ChatRequest) (*types.ProviderResult, error)
}

// StatusMonitor exposes provider health
type StatusMonitor interface {
	List() []types.ProviderHealth
	CheckAll(ctx context.Context) map[types.ProviderKind]types.ProviderHealth
	Recommend() types.ProviderKind
}

// Handler handles HTTP requests
type Handler struct {
	orchestrator Orchestrator
	monitor      StatusMonitor
	collector    *analytics.Collector
}

// NewHandler creates a new handler; monitor may be nil when health probing is disabled
func NewHandler(orch Orchestrator, monitor StatusMonitor, collector *analytics.Collector) *Handler {
	return &Handler{
		orchestrator: orch,
		monitor:      monitor,
		collector:    collector,
	}
}

func badRequest(c fiber.Ctx, code, msg string, details map[string]interface{}) error {
	return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
		Error:     msg,
		Code:      code,
		Details:   details,
		Timestamp: time.Now(),
	})
}

// respond writes a result, mapping validation errors to 400
func respond(c fiber.Ctx, res *types.ProviderResult, err error) error {
	var verr *orchestrator.ValidationError
	if errors.As(err, &verr) {
		return badRequest(c, "validation_error", verr.Error(), map[string]interface{}{"field": verr.Field})
	}
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("Unexpected orchestration error")
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{
			Error:     "Internal server error",
			Code:      "internal_error",
			Timestamp: time.Now(),
		})
	}
	if res != nil {
		markResult(c, res)
	}
	return c.JSON(res)
}

// GetGuidance handles GET /api/v1/guidance/:device/:step
func (h *Handler) GetGuidance(c fiber.Ctx) error {
	c.Locals(localDevice, c.Params("device"))
	c.Locals(localStep, c.Params("step"))

	step, err := strconv.Atoi(c.Params("step"))
	if err != nil {
		return badRequest(c, "validation_error", "step must be a number", map[string]interface{}{"field": "step_number"})
	}

	req := types.GuidanceRequest{
		DeviceType:  types.DeviceType(c.Params("device")),
		StepNumber:  step,
		Language:    types.Language(c.Query("language", "")),
		Style:       types.Style(c.Query("style", "")),
		DeviceBrand: c.Query("brand", ""),
		DeviceModel: c.Query("model", ""),
	}

	res, err := h.orchestrator.Guidance(c.Context(), req)
	return respond(c, res, err)
}

// Chat handles POST /api/v1/chat
func (h *Handler) Chat(c fiber.Ctx) error {
	var req types.ChatRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "bad_request", "Invalid request body", nil)
	}

	res, err := h.orchestrator.Chat(c.Context(), req)
	return respond(c, res, err)
}

// ListDevices handles GET /api/v1/devices
func (h *Handler) ListDevices(c fiber.Ctx) error {
	devices := make([]fiber.Map, 0)
	for _, dt := range content.DeviceTypes() {
		d, _ := content.Lookup(dt)
		devices = append(devices, fiber.Map{
			"type":         d.Type,
			"display_name": d.DisplayName,
			"total_steps":  d.TotalSteps(),
		})
	}
	return c.JSON(fiber.Map{"devices": devices, "total": len(devices)})
}

// GetStatus handles GET /api/v1/status
func (h *Handler) GetStatus(c fiber.Ctx) error {
	if h.monitor == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Status monitor not enabled",
		})
	}
	return c.JSON(fiber.Map{
		"providers":   h.monitor.List(),
		"recommended": h.monitor.Recommend(),
	})
}

// CheckStatus handles POST /api/v1/status/check and probes every provider now
func (h *Handler) CheckStatus(c fiber.Ctx) error {
	if h.monitor == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Status monitor not enabled",
		})
	}
	h.monitor.CheckAll(c.Context())
	return c.JSON(fiber.Map{
		"providers":   h.monitor.List(),
		"recommended": h.monitor.Recommend(),
	})
}

// HealthCheck handles GET /api/v1/health
func (h *Handler) HealthCheck(c fiber.Ctx) error {
	resp := fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	if h.monitor != nil {
		available := 0
		for _, ph := range h.monitor.List() {
			if ph.Available {
				available++
			}
		}
		// Static content keeps the service answering with zero providers
		resp["providers_available"] = available
	}
	return c.JSON(resp)
}

// LivenessProbe handles GET /api/v1/alive
func (h *Handler) LivenessProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "alive",
	})
}

// Stats handles GET /stats
func (h *Handler) Stats(c fiber.Ctx) error {
	if h.collector == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Analytics not enabled",
		})
	}
	return c.JSON(h.collector.GetStats())
}
