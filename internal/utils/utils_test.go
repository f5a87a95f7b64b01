package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"Direct connection", nil, "192.0.2.10"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.7"}, "203.0.113.7"},
		{"First public forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 198.51.100.4, 203.0.113.9"}, "198.51.100.4"},
		{"All private forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 192.168.1.1"}, "10.0.0.1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, GetRealIP(newContext(tc.headers)))
		})
	}
}

func TestGetUserAgent(t *testing.T) {
	assert.Equal(t, "Unknown", GetUserAgent(newContext(nil)))
	assert.Equal(t, "curl/8.0", GetUserAgent(newContext(map[string]string{"User-Agent": "curl/8.0"})))
}

func TestParseUserAgent(t *testing.T) {
	desktop := ParseUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.Equal(t, "desktop", desktop.DeviceType)
	assert.Equal(t, "Chrome", desktop.Browser)
	assert.Contains(t, desktop.OS, "Windows")
	assert.False(t, desktop.IsBot)

	mobile := ParseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	assert.Equal(t, "mobile", mobile.DeviceType)

	bot := ParseUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.True(t, bot.IsBot)
	assert.Equal(t, "bot", bot.DeviceType)

	unknown := ParseUserAgent("")
	assert.Equal(t, "unknown", unknown.DeviceType)
}

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret(16)
	require.NoError(t, err)
	assert.Len(t, secret, 32)

	other, err := GenerateSecret(16)
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)

	_, err = GenerateSecret(0)
	assert.Error(t, err)

	jwtSecret, err := GenerateJWTSecret()
	require.NoError(t, err)
	assert.Len(t, jwtSecret, 64)
}
