package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainauth "sortvision-gateway/internal/domain/auth"
	"sortvision-gateway/internal/utils"
)

const (
	// ClientIDHeader identifies the client when bearer auth is disabled.
	ClientIDHeader = "Client-Id"
	// AnonymousClient is used when a request carries no identity.
	AnonymousClient = "anonymous"

	clientIDKey       = "client_id"
	maxClientIDLength = 128
)

// ClientIdentity resolves the caller's client id. With a token helper every
// request must carry a valid bearer token; without one the Client-Id header
// is trusted and falls back to AnonymousClient.
func ClientIdentity(tokens *domainauth.AuthToken, logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			id := utils.CleanIdentifier(c.GetHeader(ClientIDHeader), maxClientIDLength)
			if id == "" {
				id = AnonymousClient
			}
			c.Set(clientIDKey, id)
			c.Next()
			return
		}

		raw, ok := domainauth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			RespondError(c, http.StatusUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}
		id, err := tokens.VerifyToken(raw)
		if err != nil {
			logger.WarnTag("HTTP", "rejected token: %v", err)
			RespondError(c, http.StatusUnauthorized, "invalid token", nil)
			c.Abort()
			return
		}
		c.Set(clientIDKey, id)
		c.Next()
	}
}

// ClientID returns the id set by ClientIdentity.
func ClientID(c *gin.Context) string {
	if id := c.GetString(clientIDKey); id != "" {
		return id
	}
	return AnonymousClient
}
