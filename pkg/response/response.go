package response

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/huangang/teamspace/pkg/logger"
)

// Response is the unified API response format.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError represents a structured application error with HTTP status and error code.
type AppError struct {
	HTTPStatus int    // HTTP status code (e.g. 400, 404, 500)
	Code       int    // Application-level error code
	Message    string // Human-readable error message
}

func (e *AppError) Error() string {
	return e.Message
}

// Pre-defined error constructors

func NewBadRequest(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusBadRequest, Code: 400, Message: msg}
}

func NewUnauthorized(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusUnauthorized, Code: 401, Message: msg}
}

func NewForbidden(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusForbidden, Code: 403, Message: msg}
}

func NewNotFound(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusNotFound, Code: 404, Message: msg}
}

func NewConflict(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusConflict, Code: 409, Message: msg}
}

func NewServerError(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusInternalServerError, Code: 500, Message: msg}
}

// --- Gin response helpers ---

// Success sends a 200 OK response with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "ok",
		Data:    data,
	})
}

// Created sends a 201 Created response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "created",
		Data:    data,
	})
}

// mapping pairs a sentinel error with the AppError it is reported as.
type mapping struct {
	target error
	appErr *AppError
}

var (
	mappingsMu sync.RWMutex
	mappings   []mapping
)

// Register reports every error matching target (errors.Is) as appErr.
// Packages call it from init for their sentinel errors.
func Register(target error, appErr *AppError) {
	mappingsMu.Lock()
	defer mappingsMu.Unlock()
	mappings = append(mappings, mapping{target: target, appErr: appErr})
}

// Resolve converts err to an AppError. Unknown errors become a generic 500.
func Resolve(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	mappingsMu.RLock()
	defer mappingsMu.RUnlock()
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.appErr
		}
	}
	return NewServerError("internal server error")
}

// Error sends an error response. Unmapped errors are logged and reported
// as a generic 500 so internal details never reach the client.
func Error(c *gin.Context, err error) {
	appErr := Resolve(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	c.JSON(appErr.HTTPStatus, Response{
		Code:    appErr.Code,
		Message: appErr.Message,
	})
}

// PageData wraps a page of items with its paging metadata.
type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

// Page sends a 200 OK response with a paginated payload.
func Page(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	Success(c, PageData{Total: total, Page: page, PageSize: pageSize, Items: items})
}

// Convenience error response functions

func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: 400, Message: msg})
}

func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Response{Code: 401, Message: msg})
}

func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Response{Code: 403, Message: msg})
}

func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Code: 404, Message: msg})
}

func ServerError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Response{Code: 500, Message: msg})
}
