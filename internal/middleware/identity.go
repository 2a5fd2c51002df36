package middleware

// identity.go holds helpers shared by handlers and middleware for reading
// the caller placed in the context by JWTAuth.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Roles carried in the token's role claim.
const (
	RoleOwner    = "OWNER"
	RoleCustomer = "CUSTOMER"
)

// UserID returns the authenticated user id, or false for anonymous requests.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get("user_id").(uint64)
	return id, ok && id > 0
}

// currentUserID renders the caller for rate-limit keys.
func currentUserID(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
