package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var secret = []byte("caller-secret")

func signCaller(t *testing.T, sub string, key []byte, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func newApp(t *testing.T) *fiber.App {
	log := zaptest.NewLogger(t)
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("gw-token", log))
	app.Get("/open", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/me", CallerContextMiddleware(secret, log), func(c *fiber.Ctx) error {
		caller, err := CallerFrom(c)
		if err != nil {
			return err
		}
		return c.SendString(caller.Hex())
	})
	return app
}

func TestGatewayAuth(t *testing.T) {
	app := newApp(t)

	cases := []struct {
		header string
		want   int
	}{
		{"", fiber.StatusUnauthorized},
		{"Bearer wrong", fiber.StatusUnauthorized},
		{"Bearer gw-token", fiber.StatusOK},
		{"gw-token", fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/open", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.StatusCode, "header %q", tc.header)
	}
}

func TestCallerContext(t *testing.T) {
	app := newApp(t)
	addr := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"valid", signCaller(t, addr.Hex(), secret, time.Now().Add(time.Hour)), fiber.StatusOK},
		{"wrong key", signCaller(t, addr.Hex(), []byte("other"), time.Now().Add(time.Hour)), fiber.StatusUnauthorized},
		{"expired", signCaller(t, addr.Hex(), secret, time.Now().Add(-time.Hour)), fiber.StatusUnauthorized},
		{"not an address", signCaller(t, "alice", secret, time.Now().Add(time.Hour)), fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			req.Header.Set("Authorization", "Bearer gw-token")
			if tc.token != "" {
				req.Header.Set(CallerHeader, tc.token)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
			if tc.want == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, addr.Hex(), string(body))
			}
		})
	}
}

func TestParseCallerTokenRejectsNoneAlg(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "0x00000000000000000000000000000000000a11ce",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseCallerToken(raw, secret)
	assert.Error(t, err)
}
