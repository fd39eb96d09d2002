package httpserver

import (
	"errors"
	"net/http"

	"escrow-service/internal/escrow"

	"github.com/gin-gonic/gin"
)

var (
	errInvalidProjectID    = errors.New("invalid project id")
	errInvalidMilestoneNum = errors.New("invalid milestone number")
)

func statusForKind(kind escrow.Kind) int {
	switch kind {
	case escrow.KindInvalidArgument:
		return http.StatusBadRequest
	case escrow.KindNotAuthorized:
		return http.StatusForbidden
	case escrow.KindNotFound:
		return http.StatusNotFound
	case escrow.KindAlreadyExists, escrow.KindInvalidState, escrow.KindNoChange, escrow.KindTooEarly:
		return http.StatusConflict
	case escrow.KindSystemPaused, escrow.KindContention:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError translates an engine error into an HTTP response. Unknown
// errors become an opaque 500; their detail stays in the logs.
func respondError(c *gin.Context, err error) {
	kind := escrow.KindOf(err)
	if kind == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(statusForKind(kind), gin.H{
		"error": err.Error(),
		"code":  string(kind),
	})
}
