package middleware

import (
	"net/http"

	"fashion-advisor-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SessionKey 是 gin 上下文中存放 model.Session 的键。
const SessionKey = "session"

// RequireSession 要求网关持有登录态，并把当前 Session 存入上下文。
// 网关是单用户进程，登录态来自 SessionService 而不是请求头。
func RequireSession(sessions service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Current()
		if !sess.Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请先登录", "data": nil})
			return
		}
		c.Set(SessionKey, sess)
		c.Next()
	}
}
