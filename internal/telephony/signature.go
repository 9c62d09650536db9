package telephony

import (
	"net/http"
	"strings"

	"survey-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/client"
)

const headerTwilioSignature = "X-Twilio-Signature"

// RequireTwilioSignature rejects webhooks that were not signed with authToken.
// Twilio signs the public URL it called, so the check is made against
// publicURL plus the request path, not the Host the proxy forwarded.
func RequireTwilioSignature(authToken, publicURL string) gin.HandlerFunc {
	validator := client.NewRequestValidator(authToken)
	base := strings.TrimRight(publicURL, "/")

	return func(c *gin.Context) {
		sig := c.GetHeader(headerTwilioSignature)
		if sig == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing signature"})
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		url := base + c.Request.URL.RequestURI()
		if !validator.Validate(url, params, sig) {
			logger.FromGin(c).Warn("twilio signature rejected", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
