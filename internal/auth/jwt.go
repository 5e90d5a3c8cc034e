package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/marketline/marketchat/internal/identity"
)

const (
	claimSubject     = "sub"
	claimUserID      = "user_id"
	claimUsername    = "username"
	claimEmail       = "email"
	claimName        = "name"
	claimAvatar      = "avatar"
	tokenContextKey  = "user"
	callerContextKey = "caller"
)

// JWTMiddleware verifies HS256 tokens minted by the upstream boundary.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		ContextKey:    tokenContextKey,
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// TokenClaims extracts the caller claims from a verified token in the context.
func TokenClaims(c echo.Context) (identity.Claims, error) {
	token, ok := c.Get(tokenContextKey).(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return identity.Claims{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity.Claims{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	out := identity.Claims{
		Ref:         claimString(claims, claimUserID),
		Email:       claimString(claims, claimEmail),
		Username:    claimString(claims, claimUsername),
		DisplayName: claimString(claims, claimName),
		AvatarURL:   claimString(claims, claimAvatar),
	}
	if out.Ref == "" {
		out.Ref = claimString(claims, claimSubject)
	}
	if out.Ref == "" && out.Username == "" && out.Email == "" {
		return identity.Claims{}, echo.NewHTTPError(http.StatusUnauthorized, "user id missing")
	}
	return out, nil
}

// GenerateToken signs a token carrying the caller claims. The chat service only
// verifies tokens; this exists for the upstream boundary and for tests.
func GenerateToken(caller identity.Claims, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(caller.Ref) == "" {
		return "", time.Time{}, fmt.Errorf("user ref is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: caller.Ref,
		claimUserID:  caller.Ref,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	optional := map[string]string{
		claimUsername: caller.Username,
		claimEmail:    caller.Email,
		claimName:     caller.DisplayName,
		claimAvatar:   caller.AvatarURL,
	}
	for key, value := range optional {
		if strings.TrimSpace(value) != "" {
			claims[key] = value
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(raw))
	}
}
