// internal/middleware/helpers.go
package middleware

import (
	billing "wakili-service/internal/domain/billing"

	"github.com/gin-gonic/gin"
)

// GetIdentityID gets the authenticated identity ID from context
func GetIdentityID(c *gin.Context) (int64, bool) {
	identityID, exists := c.Get("identity_id")
	if !exists {
		return 0, false
	}

	id, ok := identityID.(int64)
	return id, ok
}

// MustGetIdentityID gets identity ID from context or panics
func MustGetIdentityID(c *gin.Context) int64 {
	identityID, exists := GetIdentityID(c)
	if !exists {
		panic("identity_id not found in context")
	}
	return identityID
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get("roles")
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

// MustGetActor builds the authenticated actor from context or panics.
// Only reachable behind Auth(), which guarantees both keys are set.
func MustGetActor(c *gin.Context) billing.Actor {
	return billing.Actor{
		IdentityID: MustGetIdentityID(c),
		Roles:      GetRoles(c),
	}
}

// HasRole checks if user has role
func HasRole(c *gin.Context, role string) bool {
	for _, r := range GetRoles(c) {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks if user is an admin
func IsAdmin(c *gin.Context) bool {
	return HasRole(c, "admin") || HasRole(c, "super_admin")
}
