package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/types"
)

func statusOf(err error) int {
	var (
		notFound   *types.NotFoundError
		conflict   *types.ConflictError
		forbidden  *types.ForbiddenError
		validation *types.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &validation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	body := gin.H{"error": err.Error()}
	var validation *types.ValidationError
	if errors.As(err, &validation) && len(validation.Messages) > 0 {
		body["details"] = validation.Messages
	}
	if status == http.StatusInternalServerError {
		logger.Errorw("handler_error", "request_id", c.GetString(requestIDKey), "error", err)
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}

func abortWith(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}

func badRequest(message string) error {
	return &types.ValidationError{Message: message}
}

func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		writeError(c, badRequest(name+" must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}

// splitPath turns "a/b" into a slug chain; an empty string is the top.
func splitPath(raw string) []string {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "/")
}
