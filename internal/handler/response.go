// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"fashion-advisor-go/internal/service"
	"fashion-advisor-go/pkg/fetcher"
	"fashion-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

func ok(c *gin.Context, data any) {
	respond(c, http.StatusOK, "success", data)
}

// statusFor 把业务错误映射为 HTTP 状态码。
func statusFor(err error) int {
	var httpErr *fetcher.HTTPError
	switch {
	case errors.Is(err, service.ErrTurnInFlight),
		errors.Is(err, service.ErrTurnSuperseded),
		errors.Is(err, service.ErrAlreadyRecording),
		errors.Is(err, service.ErrNotRecording),
		errors.Is(err, service.ErrNearbyUnavailable):
		return http.StatusConflict
	case errors.Is(err, service.ErrEmptyTurn),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidProductID),
		errors.Is(err, service.ErrMissingImage),
		errors.Is(err, service.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrConversationNotFound),
		errors.Is(err, service.ErrConversationClosed):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRecordingUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, service.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUserMismatch),
		errors.Is(err, service.ErrMicrophoneDenied):
		return http.StatusForbidden
	case errors.As(err, &httpErr):
		if httpErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s %s 失败: %v", c.Request.Method, c.FullPath(), err)
	} else {
		log.Warnf("%s %s 失败: %v", c.Request.Method, c.FullPath(), err)
	}
	respond(c, status, messageFor(err), nil)
}

// messageFor 返回展示给用户的错误文案。
func messageFor(err error) string {
	if errors.Is(err, service.ErrMicrophoneDenied) {
		return service.MicrophoneDeniedText
	}
	return err.Error()
}

func badRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, message, nil)
}
