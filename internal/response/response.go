package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the standardized API response envelope.
type Response struct {
	Data       any         `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody represents a structured error response. Fields carries
// per-field validation messages; Details carries the typed payload of
// domain errors such as an incomplete submit.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details any               `json:"detalhes,omitempty"`
}

// IncompleteDetails tells the student how far a rejected submit was from done.
type IncompleteDetails struct {
	Missing  int `json:"faltando"`
	Answered int `json:"respondidas"`
	Total    int `json:"total"`
}

// RetryDetails accompanies RATE_LIMIT_EXCEEDED.
type RetryDetails struct {
	RetryAfter int `json:"tentar_novamente_em_s"`
}

// Pagination holds pagination information.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPagination clamps page and perPage and derives the page count.
// It returns the clamped values with the offset to query from.
func NewPagination(page, perPage, maxPerPage int) (*Pagination, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return &Pagination{Page: page, PerPage: perPage}, (page - 1) * perPage
}

// SetTotal records the item count and the resulting number of pages.
func (p *Pagination) SetTotal(total int) {
	p.TotalItems = total
	p.TotalPages = (total + p.PerPage - 1) / p.PerPage
}

// Metadata includes request tracing and the server clock, which exam
// timers use to correct for a skewed client clock.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// ────────────────────────────────────────────────────────────────────────────
// Helper builders
// ────────────────────────────────────────────────────────────────────────────

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{
		Data:     data,
		Metadata: buildMetadata(c),
	})
}

// SuccessWithPagination sends a successful response with pagination metadata.
func SuccessWithPagination(c *gin.Context, statusCode int, data any, pagination *Pagination) {
	c.JSON(statusCode, Response{
		Data:       data,
		Pagination: pagination,
		Metadata:   buildMetadata(c),
	})
}

// Fail sends an error response with an error code and no field-level details.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, errorResponse(c, &ErrorBody{Code: code}))
}

// FailWithFields sends an error response with field-level validation details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, errorResponse(c, &ErrorBody{Code: code, Fields: fields}))
}

// FailWithDetails sends an error response carrying a typed domain payload.
func FailWithDetails(c *gin.Context, statusCode int, code ErrCode, details any) {
	c.JSON(statusCode, errorResponse(c, &ErrorBody{Code: code, Details: details}))
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, errorResponse(c, &ErrorBody{Code: code}))
}

// AbortFailWithDetails is AbortFail with a typed domain payload.
func AbortFailWithDetails(c *gin.Context, statusCode int, code ErrCode, details any) {
	c.AbortWithStatusJSON(statusCode, errorResponse(c, &ErrorBody{Code: code, Details: details}))
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func errorResponse(c *gin.Context, body *ErrorBody) Response {
	body.Message = GetMessage(body.Code)
	return Response{Error: body, Metadata: buildMetadata(c)}
}

func buildMetadata(c *gin.Context) Metadata {
	return Metadata{
		RequestID: RequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
