package echo

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/flanksource/hse/api"
)

// BearerActorResolver reads the acting user from the subject of an HMAC
// signed JWT in the Authorization header.
func BearerActorResolver(signingKey []byte) ActorResolver {
	return func(c echo.Context) (uuid.UUID, error) {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return uuid.Nil, api.Errorf(api.EUNAUTHORIZED, "missing bearer token")
		}

		var claims jwt.RegisteredClaims
		token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenUnverifiable
			}
			return signingKey, nil
		})
		if err != nil || !token.Valid {
			return uuid.Nil, api.Errorf(api.EUNAUTHORIZED, "invalid bearer token").WithDebugInfo("%v", err)
		}

		id, err := uuid.Parse(claims.Subject)
		if err != nil {
			return uuid.Nil, api.Errorf(api.EUNAUTHORIZED, "token subject %q is not a user id", claims.Subject)
		}
		return id, nil
	}
}
