package presenter

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/civicworks/civicd/internal/domain"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func Created(c echo.Context, payload any) error {
	return c.JSON(http.StatusCreated, payload)
}

func BadRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Code: "bad_request", Error: msg})
}

// Error maps a failure from the core onto the wire. Each error
// category in the taxonomy has a fixed status; anything unrecognized
// is logged and surfaced as a generic internal failure so storage
// details never leak to clients.
func Error(c echo.Context, err error) error {
	var authErr domain.AuthError
	if errors.As(err, &authErr) {
		return c.JSON(http.StatusUnauthorized, errorResponse{Code: authErr.Code, Error: authErr.Error()})
	}

	var permErr domain.PermissionError
	if errors.As(err, &permErr) {
		return c.JSON(http.StatusForbidden, errorResponse{Code: permErr.Code, Error: permErr.Error()})
	}

	var validationErr domain.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Code: validationErr.Code, Error: validationErr.Error()})
	}

	var conflictErr domain.ConflictError
	if errors.As(err, &conflictErr) {
		return c.JSON(http.StatusConflict, errorResponse{Code: conflictErr.Code, Error: conflictErr.Error()})
	}

	if errors.Is(err, domain.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Code: "not_found", Error: err.Error()})
	}

	slog.ErrorContext(c.Request().Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("path", c.Path()),
		slog.String("module", "rest"),
	)
	return c.JSON(http.StatusInternalServerError, errorResponse{Code: "internal", Error: "internal server error"})
}
