package middleware

import (
	"github.com/brave-intl/bat-contribution-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error as JSON if it's a domain
// errutil.BaseError, mapping its CoreStatus to the matching HTTP status.
// Must run c.Next() first: errors are only populated once a handler further
// down the chain has called c.Error.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		if v, ok := err.Err.(errutil.BaseError); ok {
			c.JSON(v.Code.HTTPStatus(), v)
			return
		}
	}
}
