package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

// whoami echoes the authenticated caller.
func whoami(w http.ResponseWriter, r *http.Request) {
	uid, _ := UserIDFromContext(r.Context())
	w.Header().Set("X-User", strconv.FormatInt(uid, 10))
	w.Header().Set("X-Role", RoleFromContext(r.Context()))
	w.WriteHeader(http.StatusOK)
}

func serveWithToken(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuth(t *testing.T) {
	h := Auth(testSecret)(http.HandlerFunc(whoami))

	valid, err := IssueToken(testSecret, 42, "", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	expired, _ := IssueToken(testSecret, 42, "", -time.Minute)
	wrongKey, _ := IssueToken([]byte("other"), 42, "", time.Hour)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 42}).SignedString(testSecret)
	noUser, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).SignedString(testSecret)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong key", wrongKey, http.StatusUnauthorized},
		{"no expiry", noExp, http.StatusUnauthorized},
		{"no user", noUser, http.StatusUnauthorized},
		{"garbage", "not.a.token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		rr := serveWithToken(h, tt.token)
		if rr.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rr.Code, tt.want)
		}
	}

	rr := serveWithToken(h, valid)
	if got := rr.Header().Get("X-User"); got != "42" {
		t.Errorf("user in context = %q, want 42", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	h := Auth(testSecret)(RequireAdmin(http.HandlerFunc(whoami)))

	admin, _ := IssueToken(testSecret, 1, RoleAdmin, time.Hour)
	player, _ := IssueToken(testSecret, 2, "player", time.Hour)

	if rr := serveWithToken(h, admin); rr.Code != http.StatusOK || rr.Header().Get("X-Role") != RoleAdmin {
		t.Errorf("admin: status = %d role = %q", rr.Code, rr.Header().Get("X-Role"))
	}
	if rr := serveWithToken(h, player); rr.Code != http.StatusForbidden {
		t.Errorf("player: status = %d, want 403", rr.Code)
	}
}
