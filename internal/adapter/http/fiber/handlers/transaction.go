package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/ports"
)

// TransactionHandler exposes the `list transactions` and `get
// transaction` invocations §6 names.
type TransactionHandler struct {
	service ports.StationService
	log     *zap.Logger
}

func NewTransactionHandler(service ports.StationService, log *zap.Logger) *TransactionHandler {
	return &TransactionHandler{service: service, log: log}
}

func (h *TransactionHandler) List(c *fiber.Ctx) error {
	filter := make(map[string]interface{})
	if stationID := c.Query("station_id"); stationID != "" {
		filter["station_id"] = stationID
	}
	if status := c.Query("status"); status != "" {
		filter["status"] = status
	}

	txs, err := h.service.ListTransactions(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(txs)
}

func (h *TransactionHandler) Get(c *fiber.Ctx) error {
	key := c.Params("key")
	tx, err := h.service.GetTransaction(c.Context(), key)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if tx == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "transaction not found"})
	}
	return c.JSON(tx)
}
