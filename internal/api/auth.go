package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const userIDKey = "guideUserID"

var (
	errMissingToken  = errors.New("missing bearer token")
	errInvalidToken  = errors.New("invalid token")
	errInvalidClaims = errors.New("invalid claims")
	errInvalidIssuer = errors.New("invalid issuer")
)

// UserClaims carries the caller identity. Tokens issued by the web frontend
// put the user id in "id"; other issuers use "sub".
type UserClaims struct {
	UserID int64 `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// userID returns the numeric user id of the claims, or 0 when none is set.
func (c *UserClaims) userID() int64 {
	if c.UserID > 0 {
		return c.UserID
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

type Authenticator struct {
	secret []byte
	issuer string
	logger *slog.Logger
}

func NewAuthenticator(secret, issuer string, logger *slog.Logger) *Authenticator {
	if secret == "" {
		logger.Warn("api.jwt_secret not set, every authenticated request will be denied")
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		logger: logger,
	}
}

// RequireUser rejects requests without a valid bearer token and stores the
// caller's user id on the echo context.
func (a *Authenticator) RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := a.authenticate(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				switch {
				case errors.Is(err, errMissingToken):
					return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
				case errors.Is(err, errInvalidIssuer):
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token issuer")
				default:
					a.logger.Debug("token rejected", "error", err)
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
			}

			c.Set(userIDKey, id)
			return next(c)
		}
	}
}

func (a *Authenticator) authenticate(header string) (int64, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return 0, errMissingToken
	}
	if len(a.secret) == 0 {
		return 0, fmt.Errorf("%w: secret not configured", errInvalidToken)
	}

	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &UserClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*UserClaims)
	if !ok || !parsed.Valid {
		return 0, errInvalidClaims
	}
	if a.issuer != "" && claims.Issuer != "" && claims.Issuer != a.issuer {
		return 0, errInvalidIssuer
	}

	id := claims.userID()
	if id == 0 {
		return 0, errInvalidClaims
	}
	return id, nil
}

// CallerID returns the user id stored by RequireUser.
func CallerID(c echo.Context) (int64, bool) {
	id, ok := c.Get(userIDKey).(int64)
	return id, ok
}
