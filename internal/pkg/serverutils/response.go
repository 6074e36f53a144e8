package serverutils

import (
	"errors"
	"fmt"

	"coverage-rag-be/pkg/rag/session"
	"coverage-rag-be/pkg/search"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type Response[T any] struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func SuccessResponse[T any](message string, data T) Response[T] {
	return Response[T]{
		Success: true,
		Code:    fiber.StatusOK,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string) Response[any] {
	return Response[any]{
		Success: false,
		Code:    code,
		Message: message,
	}
}

var validate = validator.New()

// ValidateRequest runs struct tag validation and converts failures into a
// fiber 400 so the error middleware renders them consistently.
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]
			return fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("field '%s' failed on '%s' validation", first.Field(), first.Tag()))
		}
		return fiber.NewError(fiber.StatusBadRequest, "invalid request")
	}
	return nil
}

// ErrorHandlerMiddleware maps domain errors onto HTTP statuses. Handlers
// return plain errors; only this layer knows about status codes.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		case errors.Is(err, session.ErrBusy):
			return ctx.Status(fiber.StatusConflict).JSON(
				ErrorResponse(fiber.StatusConflict, "session has an exchange in flight, retry after it completes"))
		case errors.Is(err, search.ErrUnavailable):
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(
				ErrorResponse(fiber.StatusServiceUnavailable, "retrieval backend unavailable"))
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(
				ErrorResponse(fiber.StatusInternalServerError, err.Error()))
		}
	}
}
