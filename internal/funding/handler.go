package funding

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/feeledger/internal/ledger"
	"github.com/congo-pay/feeledger/internal/middleware"
)

// Handler exposes the deposit callable.
type Handler struct {
	processor *Processor
	validate  *validator.Validate
}

// NewHandler constructs a funding handler.
func NewHandler(processor *Processor) *Handler {
	return &Handler{processor: processor, validate: validator.New()}
}

// Deposit credits the caller's wallet. The principal comes from the bearer
// token; an anonymous call is answered with the unauthenticated code.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	principal := middleware.Principal(c)
	if principal == "" {
		return callableFailure(c, ledger.ErrUnauthenticated, "User must be authenticated")
	}

	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return callableFailure(c, ledger.ErrInvalidArgument, "Invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return callableFailure(c, ledger.ErrInvalidArgument, "Invalid amount")
	}

	result, err := h.processor.Deposit(c.UserContext(), principal, *req.Amount, req.PaymentReference)
	if err != nil {
		return callableFailure(c, err, "")
	}

	return c.Status(http.StatusOK).JSON(DepositResponse{
		Success:      true,
		Message:      "Deposit processed successfully",
		BalanceAfter: result.BalanceAfter,
	})
}

func callableFailure(c *fiber.Ctx, err error, message string) error {
	code := ledger.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case ledger.CodeUnauthenticated:
		status = http.StatusUnauthorized
	case ledger.CodeInvalidArgument:
		status = http.StatusBadRequest
	}
	if message == "" {
		switch code {
		case ledger.CodeUnauthenticated:
			message = "User must be authenticated"
		case ledger.CodeInvalidArgument:
			message = "Invalid amount"
		default:
			message = "Failed to process deposit"
		}
	}
	return c.Status(status).JSON(ErrorResponse{Error: callableError{Code: code, Message: message}})
}
