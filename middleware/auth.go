// middleware/auth.go
package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	CallerHeader    = "X-Caller-Token"
	callerLocalsKey = "caller"
)

// CallerContextMiddleware resolves the acting account from a gateway-signed
// HS256 token whose subject is the caller's address, and stores it in Locals.
func CallerContextMiddleware(secret []byte, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(CallerHeader))
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing " + CallerHeader + ", request must come through gateway with caller context",
			})
		}

		caller, err := ParseCallerToken(raw, secret)
		if err != nil {
			logger.Debug("caller token rejected", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid caller token",
			})
		}

		c.Locals(callerLocalsKey, caller)
		return c.Next()
	}
}

// ParseCallerToken validates raw and returns the address in its subject.
func ParseCallerToken(raw string, secret []byte) (common.Address, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return common.Address{}, err
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(sub) {
		return common.Address{}, fmt.Errorf("subject %q is not an address", sub)
	}
	return common.HexToAddress(sub), nil
}

// CallerFrom returns the caller stored by CallerContextMiddleware.
func CallerFrom(c *fiber.Ctx) (common.Address, error) {
	caller, ok := c.Locals(callerLocalsKey).(common.Address)
	if !ok {
		return common.Address{}, errors.New("caller not set")
	}
	return caller, nil
}
