package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/shift-reports/constants"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/entity"
	"github.com/joseph-ayodele/shift-reports/internal/render"
)

// Response is the envelope for successful JSON responses.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ErrorResponse is the envelope for failures. Code is the HTTP status;
// Kind is the application error code when one is known.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// UploadView is an upload row plus the status a dashboard should show.
type UploadView struct {
	*entity.Upload
	DisplayStatus constants.UploadStatus `json:"displayStatus"`
}

func viewOf(u *entity.Upload) UploadView {
	return UploadView{Upload: u, DisplayStatus: u.DisplayStatus()}
}

func viewsOf(us []*entity.Upload) []UploadView {
	out := make([]UploadView, 0, len(us))
	for _, u := range us {
		out = append(out, viewOf(u))
	}
	return out
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "created", Data: data})
}

func Error(c *gin.Context, status int, message, detail string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: status, Message: message, Detail: detail})
}

// Fail maps err to a status code and writes it.
func Fail(c *gin.Context, err error) {
	status := StatusFor(err)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    status,
		Kind:    common.CodeOf(err),
		Message: http.StatusText(status),
		Detail:  err.Error(),
	})
}

// StatusFor translates the error taxonomy into HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, common.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrInvalidReportType),
		errors.Is(err, common.ErrInvalidInput),
		common.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, common.ErrStorageWrite), errors.Is(err, common.ErrExtractionService):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrLedgerWrite), errors.Is(err, render.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
