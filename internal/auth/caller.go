package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/marketline/marketchat/internal/identity"
)

// Modes of the trusted upstream boundary.
const (
	ModeHeader = "header"
	ModeJWT    = "jwt"
)

// Headers set by the upstream proxy in header mode.
const (
	HeaderUserRef         = "X-User-Ref"
	HeaderUserEmail       = "X-User-Email"
	HeaderUserName        = "X-User-Name"
	HeaderUserDisplayName = "X-User-Display-Name"
	HeaderUserAvatar      = "X-User-Avatar"
)

// Middleware resolves the caller claims for every non-skipped request and
// stores them in the context. It never provisions users.
func Middleware(mode, secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}
	extract := HeaderClaims
	var verify echo.MiddlewareFunc
	if mode == ModeJWT {
		extract = TokenClaims
		verify = JWTMiddleware(secret, skipper)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}
			claims, err := extract(c)
			if err != nil {
				return err
			}
			c.Set(callerContextKey, claims)
			return next(c)
		}
		if verify != nil {
			return verify(h)
		}
		return h
	}
}

// HeaderClaims reads the caller from the trusted proxy headers.
func HeaderClaims(c echo.Context) (identity.Claims, error) {
	header := c.Request().Header
	claims := identity.Claims{
		Ref:         strings.TrimSpace(header.Get(HeaderUserRef)),
		Email:       strings.TrimSpace(header.Get(HeaderUserEmail)),
		Username:    strings.TrimSpace(header.Get(HeaderUserName)),
		DisplayName: strings.TrimSpace(header.Get(HeaderUserDisplayName)),
		AvatarURL:   strings.TrimSpace(header.Get(HeaderUserAvatar)),
	}
	if claims.Ref == "" && claims.Username == "" && claims.Email == "" {
		return identity.Claims{}, echo.NewHTTPError(http.StatusUnauthorized, "caller identity missing")
	}
	return claims, nil
}

// CallerFromContext returns the claims stored by Middleware.
func CallerFromContext(c echo.Context) (identity.Claims, error) {
	claims, ok := c.Get(callerContextKey).(identity.Claims)
	if !ok {
		return identity.Claims{}, echo.NewHTTPError(http.StatusUnauthorized, "caller identity missing")
	}
	return claims, nil
}
