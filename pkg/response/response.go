package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Envelope is the wire shape of every node API reply. Queries carry their
// payload in Result; failures carry a machine-readable Error instead. OK is
// redundant with the HTTP status but lets thin clients branch without
// inspecting it.
type Envelope struct {
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  *Error      `json:"error,omitempty"`
}

// Error is the failure half of an Envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned by the node API.
const (
	CodeNotFound     = "not_found"
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNodeError    = "node_error"
	CodeDuplicate    = "duplicate"
)

// Handle maps a query-layer error onto the node's error codes, replying with
// the result when err is nil.
func Handle(c *gin.Context, result interface{}, err error) {
	if err == nil {
		Success(c, result)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "resource already exists")
	default:
		InternalError(c, "node error")
	}
}

// Success replies 200 with the result.
func Success(c *gin.Context, result interface{}) {
	c.JSON(http.StatusOK, Envelope{OK: true, Result: result})
}

// Accepted replies 202. Transaction submission is asynchronous: admission to
// the pending pool is not inclusion in a block.
func Accepted(c *gin.Context, result interface{}) {
	c.JSON(http.StatusAccepted, Envelope{OK: true, Result: result})
}

// NotFound replies 404.
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, CodeNotFound, message)
}

// BadRequest replies 400.
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized replies 401.
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden replies 403.
func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, CodeForbidden, message)
}

// InternalError replies 500.
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, CodeNodeError, message)
}

// Conflict replies 409.
func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, CodeDuplicate, message)
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Envelope{OK: false, Error: &Error{Code: code, Message: message}})
}
