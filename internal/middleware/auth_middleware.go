package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"studyCafeCRM/domain"
	"studyCafeCRM/pkg/logger"
	"studyCafeCRM/pkg/utils"

	jsonres "studyCafeCRM/pkg/response"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const scopeKey = "scope"

// AuthMiddleware validates the operator JWT and stores the caller's scope
// in the echo context.
func AuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString, ok := bearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, jsonres.Error(
					"UNAUTHORIZED", "Missing or invalid authorization header", nil,
				))
			}

			claims, err := utils.ParseJWT(secret, tokenString)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					return c.JSON(http.StatusUnauthorized, jsonres.Error(
						"UNAUTHORIZED", "Token expired", nil,
					))
				}
				logger.Warn("Failed to parse JWT", err)
				return c.JSON(http.StatusUnauthorized, jsonres.Error(
					"UNAUTHORIZED", "Invalid token", nil,
				))
			}

			role := strings.ToUpper(claims.Role)
			switch role {
			case domain.RoleAdmin:
			case domain.RoleBranch:
				if claims.BranchID == 0 {
					return c.JSON(http.StatusForbidden, jsonres.Error(
						"FORBIDDEN", "Branch token without branch", nil,
					))
				}
			default:
				return c.JSON(http.StatusForbidden, jsonres.Error(
					"FORBIDDEN", "Unknown role", nil,
				))
			}

			c.Set(scopeKey, domain.Scope{
				UserID:   claims.UserID,
				Role:     role,
				BranchID: claims.BranchID,
			})

			return next(c)
		}
	}
}

// WorkerAuth guards the endpoints the execution worker calls. The worker
// sends the shared secret as a bearer token.
func WorkerAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c)
			if !ok || secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, jsonres.Error(
					"UNAUTHORIZED", "Invalid worker credentials", nil,
				))
			}

			c.Set(scopeKey, domain.AdminScope())
			return next(c)
		}
	}
}

func AdminOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			scope, ok := ScopeFrom(c)
			if !ok || scope.Role != domain.RoleAdmin {
				return c.JSON(http.StatusForbidden, jsonres.Error(
					"FORBIDDEN", "Admin access required", nil,
				))
			}

			return next(c)
		}
	}
}

// ScopeFrom returns the scope set by AuthMiddleware or WorkerAuth.
func ScopeFrom(c echo.Context) (domain.Scope, bool) {
	scope, ok := c.Get(scopeKey).(domain.Scope)
	return scope, ok
}

func bearerToken(c echo.Context) (string, bool) {
	authHeader := c.Request().Header.Get("Authorization")
	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || tokenParts[0] != "Bearer" || tokenParts[1] == "" {
		return "", false
	}
	return tokenParts[1], true
}
