package response

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docvector/pkg/errors"
	"github.com/kart-io/docvector/pkg/infra/middleware/common"
	"github.com/kart-io/docvector/pkg/validator"
)

func send(c *gin.Context, r *Response) {
	r.RequestID = common.GetRequestID(c.Request.Context())
	r.Timestamp = time.Now().UnixMilli()
	c.JSON(r.HTTPStatus(), r)
}

// lang 按 Accept-Language 选择提示语言。
func lang(c *gin.Context) string {
	if strings.HasPrefix(c.GetHeader("Accept-Language"), validator.LangZH) {
		return validator.LangZH
	}
	return validator.LangEN
}

// OK sends a successful response.
func OK(c *gin.Context, data interface{}) {
	send(c, Success(data))
}

// PageOK sends a paginated response.
func PageOK(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	send(c, Page(list, total, page, pageSize))
}

// Fail sends an error response using Errno.
func Fail(c *gin.Context, e *errors.Errno) {
	send(c, ErrWithLang(e, lang(c)))
}

// FailWithData sends an error response carrying a payload.
func FailWithData(c *gin.Context, e *errors.Errno, data interface{}) {
	r := ErrWithLang(e, lang(c))
	r.Data = data
	send(c, r)
}

// FailWithError converts any error and sends it.
func FailWithError(c *gin.Context, err error) {
	Fail(c, errors.FromError(err))
}

// FailWithValidation sends a validation error response with per-field details.
func FailWithValidation(c *gin.Context, verr *validator.ValidationErrors) {
	send(c, &Response{
		Code:     errors.ErrValidationFailed.Code,
		HTTPCode: http.StatusBadRequest,
		Message:  verr.First(),
		Data:     verr.ToMap(),
	})
}

// FailWithBindOrValidation handles binding or validation errors.
func FailWithBindOrValidation(c *gin.Context, err error) {
	if verr, ok := err.(*validator.ValidationErrors); ok {
		FailWithValidation(c, verr)
		return
	}
	Fail(c, errors.ErrInvalidParam.WithMessage("invalid request body: "+err.Error()))
}
