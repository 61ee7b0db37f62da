package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIPWhitelist(t *testing.T) {
	admins := []string{"127.0.0.1", " 192.168.1.10 ", "10.20.0.0/16", "not-an-ip"}
	cases := []struct {
		name    string
		entries []string
		remote  string
		want    int
	}{
		{"empty list allows all", nil, "1.2.3.4:1234", http.StatusOK},
		{"exact match", admins, "127.0.0.1:5000", http.StatusOK},
		{"entry is trimmed", admins, "192.168.1.10:5000", http.StatusOK},
		{"inside cidr", admins, "10.20.3.4:5000", http.StatusOK},
		{"outside cidr", admins, "10.21.0.1:5000", http.StatusForbidden},
		{"unknown client", admins, "8.8.8.8:5000", http.StatusForbidden},
		{"only junk entries", []string{"junk"}, "127.0.0.1:5000", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(IPWhitelist(tc.entries))
			r.POST("/api/admin/mail/expire", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodPost, "/api/admin/mail/expire", nil)
			req.RemoteAddr = tc.remote
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
