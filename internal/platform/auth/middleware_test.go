package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func signToken(t *testing.T, key []byte, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	key := []byte("test-key")
	tok := signToken(t, key, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		PatientID: "patient-1",
		Roles:     []string{"patient"},
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotUser, gotPatient string
	mw := JWTMiddleware(JWTConfig{SigningKey: key})
	err := mw(func(c echo.Context) error {
		gotUser = UserIDFromContext(c.Request().Context())
		gotPatient = PatientIDFromContext(c.Request().Context())
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUser != "user-1" || gotPatient != "patient-1" {
		t.Errorf("context not populated: user=%q patient=%q", gotUser, gotPatient)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	mw := JWTMiddleware(JWTConfig{SigningKey: []byte("k")})
	err := mw(func(c echo.Context) error { return nil })(c)
	if err == nil {
		t.Fatal("expected error for missing header")
	}
}

func TestJWTMiddleware_BadSignature(t *testing.T) {
	tok := signToken(t, []byte("other-key"), &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	c := e.NewContext(req, httptest.NewRecorder())

	mw := JWTMiddleware(JWTConfig{SigningKey: []byte("test-key")})
	if err := mw(func(c echo.Context) error { return nil })(c); err == nil {
		t.Fatal("expected error for bad signature")
	}
}

func contextWithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, UserRolesKey, roles)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()

	run := func(roles []string, required ...string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		ctx := c.Request().Context()
		if roles != nil {
			c.SetRequest(c.Request().WithContext(contextWithRoles(ctx, roles)))
		}
		return RequireRole(required...)(func(c echo.Context) error { return nil })(c)
	}

	if err := run([]string{"patient"}, "patient"); err != nil {
		t.Errorf("patient role should pass: %v", err)
	}
	if err := run([]string{"admin"}, "physician"); err != nil {
		t.Errorf("admin should pass any check: %v", err)
	}
	if err := run([]string{"patient"}, "physician"); err == nil {
		t.Error("expected forbidden for missing role")
	}
	if err := run(nil, "patient"); err == nil {
		t.Error("expected forbidden when no roles set")
	}
}
