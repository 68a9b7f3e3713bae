package response

import (
	"net/http"

	"proofpay-core/pkg/errno"

	"github.com/gin-gonic/gin"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// statusOf maps business codes onto HTTP statuses where the distinction
// matters to clients; everything else rides on 200 with a business code.
var statusOf = map[int]int{
	errno.ErrDuplicateNullifier.Code:  http.StatusConflict,
	errno.ErrPaymentNotRetriable.Code: http.StatusConflict,
	errno.ErrSubmissionNotFound.Code:  http.StatusNotFound,
	errno.ErrPaymentNotFound.Code:     http.StatusNotFound,
	errno.ErrUserNotFound.Code:        http.StatusNotFound,
	errno.ErrBind.Code:                http.StatusBadRequest,
	errno.ErrLedgerUnavailable.Code:   http.StatusServiceUnavailable,
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error returns an error response
func Error(c *gin.Context, err error) {
	code, msg := errno.Decode(err)
	status, ok := statusOf[code]
	if !ok {
		status = http.StatusOK
	}
	c.JSON(status, Response{
		Code:    code,
		Message: msg,
		Data:    gin.H{},
	})
}
