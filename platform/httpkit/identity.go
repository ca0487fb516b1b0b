package httpkit

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity is the caller as established by AuthRequired. The zero value is
// anonymous.
type Identity struct {
	userID uuid.UUID
	roles  []string
	siaeID *uuid.UUID
}

func (i Identity) UserID() uuid.UUID { return i.userID }

func (i Identity) Roles() []string { return i.roles }

func (i Identity) HasRole(role string) bool { return slices.Contains(i.roles, role) }

// SiaeID is the employer a siae_staff token acts for, nil for other roles.
func (i Identity) SiaeID() *uuid.UUID { return i.siaeID }

func (i Identity) IsAuthenticated() bool { return i.userID != uuid.Nil }

// GetIdentity reads the values AuthRequired stored on c.
func GetIdentity(c *gin.Context) Identity {
	uid, ok := c.Value(ContextUserIDKey).(uuid.UUID)
	if !ok {
		return Identity{}
	}

	id := Identity{userID: uid}
	id.roles, _ = c.Value(ContextRolesKey).([]string)
	if siae, ok := c.Value(ContextSiaeIDKey).(uuid.UUID); ok {
		id.siaeID = &siae
	}
	return id
}

// MustGetIdentity aborts with 401 and returns false for anonymous callers.
func MustGetIdentity(c *gin.Context) (Identity, bool) {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return Identity{}, false
	}
	return id, true
}
