package middleware

import (
	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
)

// SubjectKey holds a subject set by an authenticator other than the JWT one.
const SubjectKey = "subject"

func SetSubject(c *gin.Context, subject string) {
	c.Set(SubjectKey, subject)
}

// Subject returns the authenticated subject: the one set with SetSubject, or
// else the sub claim of the validated JWT.
func Subject(c *gin.Context) (string, bool) {
	if v, ok := c.Get(SubjectKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	claims, exists := c.Request.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if !exists || claims.RegisteredClaims.Subject == "" {
		return "", false
	}
	return claims.RegisteredClaims.Subject, true
}
