package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      ErrUnauthorized,
			expected: "UNAUTHORIZED: Authentication required",
		},
		{
			name:     "with wrapped error",
			err:      ErrInternal.WithError(errors.New("db connection failed")),
			expected: "INTERNAL_ERROR: An unexpected error occurred (db connection failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	innerErr := errors.New("inner error")
	appErr := ErrExecutionFailed.WithError(innerErr)

	if appErr.Unwrap() != innerErr {
		t.Errorf("AppError.Unwrap() did not return the wrapped error")
	}

	if ErrUnauthorized.Unwrap() != nil {
		t.Errorf("AppError.Unwrap() should return nil when no error is wrapped")
	}
}

func TestAppError_WithDetails(t *testing.T) {
	details := map[string]string{"field": "quantity", "reason": "must be positive"}
	appErr := ErrValidation.WithDetails(details)

	if appErr.Details == nil {
		t.Errorf("WithDetails should set Details")
	}

	if appErr.Code != ErrValidation.Code {
		t.Errorf("WithDetails should preserve Code")
	}

	if appErr.HTTPStatus != ErrValidation.HTTPStatus {
		t.Errorf("WithDetails should preserve HTTPStatus")
	}
}

func TestAppError_WithMessage(t *testing.T) {
	appErr := ErrNotFound.WithMessage("Trade not found")

	if appErr.Message != "Trade not found" {
		t.Errorf("WithMessage should set Message")
	}

	if appErr.Code != ErrNotFound.Code {
		t.Errorf("WithMessage should preserve Code")
	}

	if ErrNotFound.Message == "Trade not found" {
		t.Error("WithMessage should not modify original")
	}
}

func TestNew(t *testing.T) {
	err := New("CUSTOM_ERROR", "Custom message", http.StatusTeapot)

	if err.Code != "CUSTOM_ERROR" {
		t.Errorf("Code = %s, want CUSTOM_ERROR", err.Code)
	}
	if err.Message != "Custom message" {
		t.Errorf("Message = %s, want Custom message", err.Message)
	}
	if err.HTTPStatus != http.StatusTeapot {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusTeapot)
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		httpStatus int
	}{
		{"ErrBadRequest", ErrBadRequest, http.StatusBadRequest},
		{"ErrUnauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"ErrForbidden", ErrForbidden, http.StatusForbidden},
		{"ErrValidation", ErrValidation, http.StatusBadRequest},
		{"ErrNotFound", ErrNotFound, http.StatusNotFound},
		{"ErrConflict", ErrConflict, http.StatusConflict},
		{"ErrRateLimited", ErrRateLimited, http.StatusTooManyRequests},
		{"ErrInternal", ErrInternal, http.StatusInternalServerError},
		{"ErrServiceUnavailable", ErrServiceUnavailable, http.StatusServiceUnavailable},

		{"ErrInvalidQuantity", ErrInvalidQuantity, http.StatusBadRequest},
		{"ErrInvalidLotSize", ErrInvalidLotSize, http.StatusBadRequest},
		{"ErrInsufficientFunds", ErrInsufficientFunds, http.StatusBadRequest},
		{"ErrInsufficientShares", ErrInsufficientShares, http.StatusBadRequest},
		{"ErrSharesUnavailable", ErrSharesUnavailable, http.StatusBadRequest},
		{"ErrCompanyNotFound", ErrCompanyNotFound, http.StatusNotFound},
		{"ErrPriceUnavailable", ErrPriceUnavailable, http.StatusNotFound},
		{"ErrDuplicateTrade", ErrDuplicateTrade, http.StatusConflict},
		{"ErrExecutionFailed", ErrExecutionFailed, http.StatusInternalServerError},

		{"ErrWalletNotFound", ErrWalletNotFound, http.StatusNotFound},
		{"ErrTransactionNotFound", ErrTransactionNotFound, http.StatusNotFound},
		{"ErrPaymentFailed", ErrPaymentFailed, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.httpStatus {
				t.Errorf("%s.HTTPStatus = %d, want %d", tt.name, tt.err.HTTPStatus, tt.httpStatus)
			}
			if tt.err.Code == "" {
				t.Errorf("%s.Code is empty", tt.name)
			}
			if tt.err.Message == "" {
				t.Errorf("%s.Message is empty", tt.name)
			}
		})
	}
}
