package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/domain"
	"github.com/ocpp-csms/csms/internal/ports"
)

// UserHandler exposes the `create/list users` invocations §6 names.
type UserHandler struct {
	service ports.StationService
	log     *zap.Logger
}

func NewUserHandler(service ports.StationService, log *zap.Logger) *UserHandler {
	return &UserHandler{service: service, log: log}
}

func (h *UserHandler) List(c *fiber.Ctx) error {
	users, err := h.service.ListUsers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(users)
}

type createUserRequest struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	IdTokens []string `json:"id_tokens"`
}

func (h *UserHandler) Create(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	user := &domain.User{
		Name:       req.Name,
		Email:      req.Email,
		Authorized: true,
	}
	for _, token := range req.IdTokens {
		user.IdTokens = append(user.IdTokens, domain.IdToken{Token: token})
	}

	if err := h.service.CreateUser(c.Context(), user); err != nil {
		h.log.Warn("create user failed", zap.String("email", req.Email), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}
