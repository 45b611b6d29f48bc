package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// All API responses use this envelope:
//
//	{ "data": { ... }, "meta": { "request_id": "...", "timestamp": "..." } }
//
// or, on failure:
//
//	{ "error": { "code": "...", "message": "...", "details": [...] }, "meta": { ... } }

// Response is the standard API response envelope
type Response struct {
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
	Meta  Meta       `json:"meta"`
}

// ErrorBody contains error details
type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Meta contains request metadata
type Meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// PaginatedData wraps paginated results
type PaginatedData struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Pagination contains pagination metadata
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// Success returns a successful response with data
func Success(c *fiber.Ctx, data any) error {
	return c.JSON(Response{
		Data: data,
		Meta: buildMeta(c),
	})
}

// SuccessWithStatus returns a successful response with custom status code
func SuccessWithStatus(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(Response{
		Data: data,
		Meta: buildMeta(c),
	})
}

// Created returns a 201 Created response
func Created(c *fiber.Ctx, data any) error {
	return SuccessWithStatus(c, fiber.StatusCreated, data)
}

// Paginated returns a paginated response
func Paginated(c *fiber.Ctx, items any, page, perPage int, total int64) error {
	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	return c.JSON(Response{
		Data: PaginatedData{
			Items: items,
			Pagination: Pagination{
				Page:       page,
				PerPage:    perPage,
				Total:      total,
				TotalPages: totalPages,
				HasMore:    page < totalPages,
			},
		},
		Meta: buildMeta(c),
	})
}

// Error returns an error response
func Error(c *fiber.Ctx, status int, code, message string, details ...string) error {
	return c.Status(status).JSON(Response{
		Error: &ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: buildMeta(c),
	})
}

func buildMeta(c *fiber.Ctx) Meta {
	requestID := c.Get("X-Request-ID")
	if requestID == "" {
		if id, ok := c.Locals("request_id").(string); ok {
			requestID = id
		} else {
			requestID = uuid.New().String()
		}
	}

	return Meta{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Version:   "v1",
	}
}
