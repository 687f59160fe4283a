package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"growzzy/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func ownerRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.String(http.StatusOK, OwnerID(c))
	})
	return r
}

func doGet(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := ownerRouter()
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		auth   string
		status int
		body   string
	}{
		{"sub claim", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "user-1", "exp": exp}), 200, "user-1"},
		{"user_id wins", "bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "x", "user_id": "user-2"}), 200, "user-2"},
		{"numeric user_id", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": 42}), 200, "42"},
		{"fractional user_id", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": 42.5}), 401, ""},
		{"user_id beyond exact range", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": 1e300}), 401, ""},
		{"missing header", "", 401, ""},
		{"wrong scheme", "Basic abc", 401, ""},
		{"bad signature", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "user-1"}), 401, ""},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Minute).Unix()}), 401, ""},
		{"wrong alg", "Bearer " + sign(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": "user-1"}), 401, ""},
		{"no subject", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"exp": exp}), 401, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doGet(r, "/me", tc.auth)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("owner = %q, want %q", w.Body.String(), tc.body)
			}
		})
	}
}

func TestParseOwner_NoSecret(t *testing.T) {
	if _, err := ParseOwner("a.b.c", ""); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestCronAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/cron", CronAuth("cron-token"), func(c *gin.Context) { c.Status(http.StatusOK) })
	open := gin.New()
	open.GET("/cron", CronAuth(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := doGet(r, "/cron", "Bearer cron-token"); w.Code != http.StatusOK {
		t.Fatalf("valid secret: %d", w.Code)
	}
	if w := doGet(r, "/cron", "Bearer cron-tokenX"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: %d", w.Code)
	}
	if w := doGet(r, "/cron", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: %d", w.Code)
	}
	if w := doGet(open, "/cron", "Bearer "); w.Code != http.StatusUnauthorized {
		t.Fatalf("unconfigured secret must reject: %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://app.growzzy.io"}, AllowedMethods: []string{"GET"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.growzzy.io")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.growzzy.io" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
