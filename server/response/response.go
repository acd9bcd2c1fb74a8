package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// JSON writes the api envelope. errs is whatever the handler has: an *errors.Error, a list of
// validation messages or nil.
func JSON(c *gin.Context, message string, status int, data interface{}, errs interface{}) {
	responseData := gin.H{
		"message":   message,
		"data":      data,
		"errors":    errs,
		"status":    http.StatusText(status),
		"timestamp": time.Now().Format(time.RFC850),
	}
	c.JSON(status, responseData)
}
