// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"fashion-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody 之外的请求/响应体只记录长度，避免 base64 图片与录音刷屏。
const maxLoggedBody = 1024

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 同时写入 gin.ResponseWriter 和内部 buffer，buffer 只保留前 maxLoggedBody+1 字节
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody + 1 - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 记录每个请求的状态码、耗时和截断后的请求/响应体。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// multipart 上传体积大，不读取，只记录长度
		var requestBody []byte
		isMultipart := strings.HasPrefix(c.ContentType(), "multipart/")
		if c.Request.Body != nil && !isMultipart {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		reqLog := truncate(redact(requestBody))
		if isMultipart {
			reqLog = fmt.Sprintf("<multipart %d bytes>", c.Request.ContentLength)
		}
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", reqLog,
			"responseBody", truncate(blw.body.Bytes()),
		)
	}
}

// sensitiveFields 在日志中被替换为 redactedValue。
var sensitiveFields = []string{"password"}

const redactedValue = `"******"`

// redact 遮盖 JSON 对象顶层的敏感字段。无法解析时只记录长度。
func redact(b []byte) []byte {
	if len(bytes.TrimSpace(b)) == 0 {
		return b
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		if bytes.Contains(bytes.ToLower(b), []byte("password")) {
			return []byte(fmt.Sprintf("<unparsed %d bytes>", len(b)))
		}
		return b
	}
	changed := false
	for _, key := range sensitiveFields {
		if _, ok := fields[key]; ok {
			fields[key] = json.RawMessage(redactedValue)
			changed = true
		}
	}
	if !changed {
		return b
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return []byte(fmt.Sprintf("<unparsed %d bytes>", len(b)))
	}
	return out
}

func truncate(b []byte) string {
	if len(b) <= maxLoggedBody {
		return string(b)
	}
	return fmt.Sprintf("%s...(truncated)", b[:maxLoggedBody])
}
