package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/ports"
)

// CommandHandler exposes the `send command` invocation §6 names,
// backed by the outbound dispatcher (§4.F).
type CommandHandler struct {
	commands ports.OCPPCommandService
	log      *zap.Logger
}

func NewCommandHandler(commands ports.OCPPCommandService, log *zap.Logger) *CommandHandler {
	return &CommandHandler{commands: commands, log: log}
}

type sendCommandRequest struct {
	Action         string          `json:"action"`
	Payload        json.RawMessage `json:"payload"`
	TimeoutSeconds int             `json:"timeout_seconds"`
}

func (h *CommandHandler) Send(c *fiber.Ctx) error {
	stationID := c.Params("id")
	var req sendCommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Action == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "action is required"})
	}

	deadline := time.Duration(req.TimeoutSeconds) * time.Second
	result, err := h.commands.SendCommand(c.Context(), stationID, req.Action, req.Payload, deadline)
	if err != nil {
		h.log.Warn("send command failed", zap.String("station_id", stationID), zap.String("action", req.Action), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	status := fiber.StatusOK
	if result.Status == "Disconnected" || result.Status == "Timeout" {
		status = fiber.StatusGatewayTimeout
	}
	resp := fiber.Map{"status": result.Status}
	if len(result.Response) > 0 {
		resp["response"] = json.RawMessage(result.Response)
	}
	if result.Err != nil {
		resp["error"] = result.Err.Error()
	}
	return c.Status(status).JSON(resp)
}
