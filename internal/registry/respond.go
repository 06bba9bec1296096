package registry

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WriteError answers c with the status err's kind maps to. Server-side
// failures are logged at error level, rejections at debug.
func WriteError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status := StatusCode(err)
	if status >= 500 {
		logger.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
	} else {
		logger.Debug(msg, zap.Error(err), zap.Int("status", status))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
