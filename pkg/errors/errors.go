package errors

import (
	"fmt"
	"net/http"
)

// AppError is the error type surfaced to API callers. Domain code returns
// one of the predefined errors below (optionally wrapping a cause); the
// response error handler maps it to the standard envelope and HTTP status.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetails(details any) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		HTTPStatus: e.HTTPStatus,
		Err:        e.Err,
	}
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    e.Details,
		HTTPStatus: e.HTTPStatus,
		Err:        err,
	}
}

func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    message,
		Details:    e.Details,
		HTTPStatus: e.HTTPStatus,
		Err:        e.Err,
	}
}

// New creates a custom AppError for codes not covered by the predefined set.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

var (
	// Common errors

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Bad request",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Access denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrValidation = &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "Invalid input",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "Resource already exists",
		HTTPStatus: http.StatusConflict,
	}

	ErrRateLimited = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Too many requests, please try again later",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Service temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	// Trading errors

	ErrInvalidQuantity = &AppError{
		Code:       "INVALID_QUANTITY",
		Message:    "Quantity must be a positive whole number of shares",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidLotSize = &AppError{
		Code:       "INVALID_LOT_SIZE",
		Message:    "Quantity must be a multiple of the trading lot size",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInsufficientFunds = &AppError{
		Code:       "INSUFFICIENT_FUNDS",
		Message:    "Insufficient available balance for this trade",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInsufficientShares = &AppError{
		Code:       "INSUFFICIENT_SHARES",
		Message:    "You do not hold enough shares to sell",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrSharesUnavailable = &AppError{
		Code:       "SHARES_UNAVAILABLE",
		Message:    "The company does not have enough tradable shares",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrCompanyNotFound = &AppError{
		Code:       "COMPANY_NOT_FOUND",
		Message:    "Company not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrPriceUnavailable = &AppError{
		Code:       "PRICE_UNAVAILABLE",
		Message:    "No execution price could be resolved for this company",
		HTTPStatus: http.StatusNotFound,
	}

	ErrDuplicateTrade = &AppError{
		Code:       "DUPLICATE_TRADE",
		Message:    "A trade with this client reference was already submitted",
		HTTPStatus: http.StatusConflict,
	}

	ErrExecutionFailed = &AppError{
		Code:       "EXECUTION_FAILED",
		Message:    "Trade could not be executed, no changes were applied",
		HTTPStatus: http.StatusInternalServerError,
	}

	// Wallet and payment errors

	ErrWalletNotFound = &AppError{
		Code:       "WALLET_NOT_FOUND",
		Message:    "Wallet not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrTransactionNotFound = &AppError{
		Code:       "TRANSACTION_NOT_FOUND",
		Message:    "Transaction not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrPaymentFailed = &AppError{
		Code:       "PAYMENT_FAILED",
		Message:    "Payment could not be processed",
		HTTPStatus: http.StatusBadRequest,
	}
)
