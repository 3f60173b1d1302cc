package httpformat

import (
	"net/http"
	"strings"

	apperrors "relaygate/internal/errors"
	"github.com/gin-gonic/gin"
)

// DetectFromContext determines the error format based on the gin context path.
func DetectFromContext(c *gin.Context) apperrors.ErrorFormat {
	if c == nil {
		return apperrors.FormatOpenAI
	}
	if path := c.FullPath(); path != "" {
		return DetectFromPath(path)
	}
	return DetectFromRequest(c.Request)
}

// DetectFromRequest determines the error format using an HTTP request.
func DetectFromRequest(r *http.Request) apperrors.ErrorFormat {
	if r == nil || r.URL == nil {
		return apperrors.FormatOpenAI
	}
	return DetectFromPath(r.URL.Path)
}

// DetectFromPath determines the error format based on a raw path string:
// the native /v1/messages family reports errors in the upstream's own
// envelope, everything else (chat completions, models) uses the
// OpenAI-compatible envelope.
func DetectFromPath(path string) apperrors.ErrorFormat {
	path = strings.ToLower(path)
	if strings.Contains(path, "/v1/messages") || strings.Contains(path, "/code/v1/messages") {
		return apperrors.FormatNative
	}
	return apperrors.FormatOpenAI
}
