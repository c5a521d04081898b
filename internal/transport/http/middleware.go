package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/gateway/internal/dispatch"
)

// Auth enforces the inbound API key according to mode. Keys are accepted from
// "Authorization: Bearer", "x-api-key" or the api_key query parameter (browser
// WebSocket clients cannot set headers). A required key that is not configured
// rejects every guarded request.
func Auth(mode dispatch.AuthMode, apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !mode.RequiresAuth(c.Request().URL.Path) {
				return next(c)
			}
			if apiKey != "" && subtle.ConstantTimeCompare([]byte(presentedKey(c)), []byte(apiKey)) == 1 {
				return next(c)
			}
			return unauthorized(c)
		}
	}
}

// InternalPrefix is the path prefix of the collaborator-only routes.
const InternalPrefix = "/internal/"

// InternalGuard protects InternalPrefix routes regardless of the resolved auth
// mode: browser requests (any Origin header) are refused and the API key is
// always required.
func InternalGuard(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, InternalPrefix) {
				return next(c)
			}
			if req.Header.Get(echo.HeaderOrigin) != "" {
				return c.JSON(http.StatusForbidden, map[string]any{
					"error": map[string]string{
						"message": "cross-origin requests are not allowed",
						"type":    "permission_error",
					},
				})
			}
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(presentedKey(c)), []byte(apiKey)) != 1 {
				return unauthorized(c)
			}
			return next(c)
		}
	}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]any{
		"error": map[string]string{
			"message": "invalid or missing api key",
			"type":    "authentication_error",
		},
	})
}

func presentedKey(c echo.Context) string {
	req := c.Request()
	if auth := req.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if key := req.Header.Get("x-api-key"); key != "" {
		return key
	}
	return c.QueryParam("api_key")
}
