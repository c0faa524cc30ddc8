package identity

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

type registerRequest struct {
	Phone    string `json:"phone" validate:"required,min=3,max=20"`
	PIN      string `json:"pin" validate:"required,numeric,min=4,max=8"`
	DeviceID string `json:"device_id" validate:"max=128"`
}

type authResponse struct {
	UserID   string `json:"user_id"`
	Phone    string `json:"phone"`
	Tier     string `json:"tier"`
	DeviceID string `json:"device_id"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		switch {
		case errors.Is(err, ErrUserExists):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrWeakPIN):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(authResponse{UserID: user.ID, Phone: user.Phone, Tier: user.Tier, DeviceID: user.DeviceID})
}
