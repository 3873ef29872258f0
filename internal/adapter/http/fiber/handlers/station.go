package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/ports"
)

// StationHandler exposes the `list stations`, `get station` and
// `register station` invocations §6 names, backed by StationService.
type StationHandler struct {
	service ports.StationService
	log     *zap.Logger
}

func NewStationHandler(service ports.StationService, log *zap.Logger) *StationHandler {
	return &StationHandler{service: service, log: log}
}

func (h *StationHandler) List(c *fiber.Ctx) error {
	stations, err := h.service.ListStations(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stations)
}

func (h *StationHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	station, err := h.service.GetStation(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if station == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "station not found"})
	}
	return c.JSON(station)
}

type registerStationRequest struct {
	ID     string `json:"id"`
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
}

func (h *StationHandler) Register(c *fiber.Ctx) error {
	var req registerStationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id is required"})
	}

	station, err := h.service.RegisterStation(c.Context(), req.ID, req.Vendor, req.Model)
	if err != nil {
		h.log.Warn("register station failed", zap.String("station_id", req.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(station)
}
