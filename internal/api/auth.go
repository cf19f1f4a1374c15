// Authentication middleware grounded on the teacher's
// services/orchestrator/middleware.AuthMiddleware: a gin.HandlerFunc
// that inspects a header, rejects with 401 on failure, and otherwise
// calls c.Next(). The scheme itself (HMAC-SHA256 over the raw body,
// constant-time comparison) is specified in spec.md §4.7/§6.
package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxBodyPeek = 32 << 20 // generous upper bound; real limit enforced by bodySizeLimit middleware

// signatureMiddleware verifies the X-Signature header against
// hex(HMAC-SHA256(key, raw_body)) using constant-time comparison
// (spec.md §4.7). It buffers the request body so downstream handlers
// can still read it via c.Request.Body.
func signatureMiddleware(key []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyPeek))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		sig := c.GetHeader("X-Signature")
		if !validSignature(key, body, sig) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}

func validSignature(key, body []byte, sigHex string) bool {
	if sigHex == "" {
		return false
	}
	want, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	got := mac.Sum(nil)
	return hmac.Equal(got, want)
}

// bodySizeLimit returns 413 when the declared Content-Length exceeds
// maxBytes (spec.md §4.7 admission rule).
func bodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request too large"})
			return
		}
		c.Next()
	}
}
