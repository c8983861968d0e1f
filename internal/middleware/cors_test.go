package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/handcricket/backend/internal/config"
)

func TestAllowedOrigins(t *testing.T) {
	dev := &config.Config{Environment: "development", FrontendURL: "http://localhost:5173, https://play.example/"}
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173", "https://play.example"}, AllowedOrigins(dev))

	prod := &config.Config{Environment: "production", FrontendURL: "https://play.example"}
	assert.Equal(t, []string{"https://play.example"}, AllowedOrigins(prod))
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware(&config.Config{Environment: "production", FrontendURL: "https://play.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://play.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://play.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
