// Package auth authenticates operators of the monitor's control API with
// EIP-191 personal signatures.
package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SignedRequest is the JSON payload inside X-Signed-Request. Action must be
// "<METHOD> <path>" of the request it authorises and BodyHash the BodyHash of
// its body.
type SignedRequest struct {
	Action    string `json:"action"`
	BodyHash  string `json:"body_hash"`
	ExpiresAt int64  `json:"expires_at"`
	Nonce     string `json:"nonce"`
}

// ContextKey holds the authenticated operator address in the gin context.
const ContextKey = "operator_address"

const (
	maxFutureWindow = 5 * time.Minute
	nonceKeyPrefix  = "masumi:nonce:"
	maxBodyBytes    = 1 << 20
)

// Middleware validates operator signatures. When operators is non-empty only
// those addresses are admitted.
func Middleware(rdb *redis.Client, operators []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(operators))
	for _, op := range operators {
		allowed[strings.ToLower(op)] = true
	}

	return func(c *gin.Context) {
		addr := c.GetHeader(HeaderAddress)
		msgB64 := c.GetHeader(HeaderMessage)
		sigHex := c.GetHeader(HeaderSignature)

		if addr == "" || msgB64 == "" || sigHex == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth headers"})
			return
		}

		msg, err := base64.StdEncoding.DecodeString(msgB64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Signed-Request encoding"})
			return
		}

		var req SignedRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signed request JSON"})
			return
		}

		now := time.Now().Unix()
		if req.ExpiresAt <= now {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request expired"})
			return
		}
		if req.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "expires_at too far in future"})
			return
		}
		if req.Action != c.Request.Method+" "+c.Request.URL.Path {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "action does not match request"})
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, err = io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		if len(body) > maxBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
			return
		}
		if !strings.EqualFold(req.BodyHash, BodyHash(body)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "body does not match request"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		signer, err := recoverSigner(msg, sigHex)
		if err != nil || !strings.EqualFold(signer.Hex(), addr) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		if len(allowed) > 0 && !allowed[strings.ToLower(signer.Hex())] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator not allowed"})
			return
		}

		ttl := time.Duration(req.ExpiresAt-now) * time.Second
		set, err := rdb.SetNX(context.Background(), nonceKeyPrefix+req.Nonce, signer.Hex(), ttl).Result()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !set {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "nonce already used"})
			return
		}

		c.Set(ContextKey, signer.Hex())
		c.Next()
	}
}
