package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"videotube/apperror"
)

// Errors renders the last error attached to the context as the JSON error
// envelope. Stacks are included outside production.
func Errors(production bool, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		resp := apperror.ToResponse(err, !production)
		if resp.StatusCode >= 500 {
			log.Error().Err(err).Str("kind", string(resp.Kind)).Str("path", c.FullPath()).Msg("request failed")
		}
		c.JSON(resp.StatusCode, resp)
	}
}

// Recovery turns a handler panic into an internal error.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("handler panic")
		_ = c.Error(apperror.NewInternal("Something went wrong.", nil))
		c.Abort()
	})
}
