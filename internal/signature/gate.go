package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Gate verifies HMAC-SHA256 signatures of raw request bodies against a shared secret.
type Gate struct {
	secret []byte
}

func NewGate(secret string) *Gate {
	return &Gate{secret: []byte(secret)}
}

// Configured reports whether a secret is set. An unconfigured gate rejects everything.
func (g *Gate) Configured() bool { return len(g.secret) > 0 }

// Sign returns the lowercase hex HMAC-SHA256 of body.
func (g *Gate) Sign(body []byte) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether provided is the hex signature of the raw body.
// An empty provided signature never matches.
func (g *Gate) Verify(body []byte, provided string) bool {
	if !g.Configured() || provided == "" {
		return false
	}
	expected := g.Sign(body)
	return hmac.Equal([]byte(expected), []byte(provided))
}
