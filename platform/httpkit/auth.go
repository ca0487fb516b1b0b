package httpkit

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"itou_backend/platform/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ContextUserIDKey = "userID"
	ContextRolesKey  = "roles"
	// ContextSiaeIDKey holds the employer a siae_staff member acts for.
	ContextSiaeIDKey = "siaeID"

	RoleAdmin      = "admin"
	RoleSiaeStaff  = "siae_staff"
	RolePrescriber = "prescriber"

	tokenTypeAccess = "access"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// accessClaims is the payload of tokens minted by the identity provider.
type accessClaims struct {
	Type   string   `json:"type"`
	Roles  []string `json:"roles"`
	SiaeID string   `json:"siae_id,omitempty"`
	jwt.RegisteredClaims
}

// AuthRequired validates an HS256 access token from the Authorization header
// and stores the caller's identity on the gin context.
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return []byte(cfg.GetJWTAccessSecret()), nil }

	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abortUnauthorized(c, errMissingToken)
			return
		}

		var claims accessClaims
		if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, keyFunc); err != nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}
		if claims.Type != tokenTypeAccess {
			abortUnauthorized(c, errInvalidToken)
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}
		c.Set(ContextUserIDKey, userID)
		c.Set(ContextRolesKey, claims.Roles)

		if s := strings.TrimSpace(claims.SiaeID); s != "" {
			siaeID, err := uuid.Parse(s)
			if err != nil {
				abortUnauthorized(c, errInvalidToken)
				return
			}
			c.Set(ContextSiaeIDKey, siaeID)
		}
		c.Next()
	}
}

// RequireRole lets the request through when the caller holds any of allowed.
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, _ := c.Value(ContextRolesKey).([]string)
		for _, role := range roles {
			if slices.Contains(allowed, role) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	}
}

func abortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
}
