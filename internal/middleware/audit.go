package middleware

import (
	"bytes"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/huangang/teamspace/pkg/logger"
)

const auditBodyLimit = 2000

// AuditLog writes a structured audit entry for every write request
// (membership changes, notification reads) after the handler ran.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = string(bodyBytes)
			if len(bodySnippet) > auditBodyLimit {
				bodySnippet = bodySnippet[:auditBodyLimit] + "...[truncated]"
			}
			bodySnippet = maskSensitiveFields(bodySnippet)
		}

		c.Next()

		status := c.Writer.Status()
		resource, action := parseRouteInfo(c.FullPath(), method)

		event := logger.Info()
		if status >= 400 {
			event = logger.Warn()
		}
		event.
			Bool("audit", true).
			Uint("user_id", GetUserID(c)).
			Str("username", GetUsername(c)).
			Str("resource", resource).
			Str("action", action).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("ip", c.ClientIP()).
			Str("body", bodySnippet).
			Msg("audit")
	}
}

// parseRouteInfo names the resource after the last static segment of a
// route pattern, e.g. "/api/projects/:id/members/:userID" + "PUT" gives
// ("members", "update").
func parseRouteInfo(fullPath, method string) (resource, action string) {
	resource = "unknown"
	for _, part := range strings.Split(strings.TrimPrefix(fullPath, "/api/"), "/") {
		if part == "" || strings.HasPrefix(part, ":") {
			continue
		}
		resource = part
	}

	switch method {
	case "POST":
		action = "create"
	case "PUT":
		action = "update"
	case "DELETE":
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	return resource, action
}

// maskSensitiveFields replaces sensitive values in JSON body
func maskSensitiveFields(body string) string {
	sensitiveKeys := []string{"password", "secret", "token", "access_token"}
	lower := strings.ToLower(body)
	for _, key := range sensitiveKeys {
		if strings.Contains(lower, key) {
			body = maskJSONValue(body, key)
		}
	}
	return body
}

// maskJSONValue does a best-effort mask of the first JSON string value for key.
func maskJSONValue(body, key string) string {
	lower := strings.ToLower(body)
	idx := strings.Index(lower, "\""+key+"\"")
	if idx == -1 {
		return body
	}

	colonIdx := strings.Index(body[idx+len(key)+2:], ":")
	if colonIdx == -1 {
		return body
	}
	valueStart := idx + len(key) + 2 + colonIdx + 1

	for valueStart < len(body) && (body[valueStart] == ' ' || body[valueStart] == '\t') {
		valueStart++
	}
	if valueStart >= len(body) || body[valueStart] != '"' {
		return body
	}

	endQuote := strings.Index(body[valueStart+1:], "\"")
	if endQuote == -1 {
		return body
	}
	return body[:valueStart+1] + "***" + body[valueStart+1+endQuote:]
}
