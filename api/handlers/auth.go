package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/teleprompter/backend/internal/auth"
	"github.com/teleprompter/backend/internal/model"
)

const userKey = "user"

// RequireIdentity rejects requests without a valid credential and stores the
// authenticated user in the context for the handlers behind it.
func RequireIdentity(verifier auth.Verifier, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := verifier.Verify(c.Request.Context(), auth.TokenFromRequest(c.Request))
		if err != nil {
			logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("authentication failed")
			sendDomainError(c, err)
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// userFrom returns the user RequireIdentity stored. Handlers are only
// mounted behind RequireIdentity, so a missing user is a wiring bug.
func userFrom(c *gin.Context) *model.User {
	return c.MustGet(userKey).(*model.User)
}
