package httpapi

import (
	"errors"
	"net/http"

	"tickethub/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
	StatusError          = "error"
)

// Response is the JSON envelope every endpoint returns.
type Response struct {
	Status   string   `json:"status"`
	Message  string   `json:"message,omitempty"`
	Data     any      `json:"data,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func OK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Status: StatusSuccess, Message: message, Data: data})
}

func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Response{Status: StatusSuccess, Message: message, Data: data})
}

// Partial reports a batch operation where some items succeeded and some did
// not. Never masked as full success or full failure.
func Partial(c *gin.Context, message string, data any, warnings []string) {
	c.JSON(http.StatusOK, Response{Status: StatusPartialSuccess, Message: message, Data: data, Warnings: warnings})
}

func Error(c *gin.Context, err error) {
	var be errutil.BaseError
	if errors.As(err, &be) {
		c.JSON(be.Code.HTTPStatus(), Response{Status: StatusError, Message: be.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, Response{Status: StatusError, Message: err.Error()})
}
