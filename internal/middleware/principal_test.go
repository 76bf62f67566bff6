package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"hostpanel/internal/model"
)

type stubResolver struct {
	token  string
	origin string
}

func (s *stubResolver) Resolve(_ context.Context, rawBearer, origin string) (model.Principal, bool) {
	s.origin = origin
	if rawBearer != s.token {
		return model.Principal{}, false
	}
	return model.Principal{Kind: model.PrincipalInteractive, UserID: 7}, true
}

func TestRequirePrincipal_SetsPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	res := &stubResolver{token: "good"}

	r := gin.New()
	r.GET("/", RequirePrincipal(res), func(c *gin.Context) {
		p, ok := PrincipalFromContext(c)
		if !ok || p.UserID != 7 {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.RemoteAddr = "10.1.2.3:5555"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if res.origin != "10.1.2.3" {
		t.Fatalf("expected origin 10.1.2.3, got %q", res.origin)
	}
}

func TestRequirePrincipal_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", RequirePrincipal(&stubResolver{token: "good"}), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Bearer bad", "Basic good"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", header, w.Code)
		}
		if want := `{"status":"error","message":"Access token is missing or invalid","error":"UNAUTHORIZED"}`; w.Body.String() != want {
			t.Fatalf("%q: unexpected body %s", header, w.Body.String())
		}
	}
}

func TestRequireDaemonSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/daemon", RequireDaemonSecret("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := map[string]int{
		"Bearer s3cret": http.StatusOK,
		"Bearer wrong":  http.StatusUnauthorized,
		"":              http.StatusUnauthorized,
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodPost, "/daemon", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("%q: expected %d, got %d", header, want, w.Code)
		}
	}
}
