package security

import (
	"crypto/subtle"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// CronSecretHeader carries the pre-shared secret of trusted schedulers.
const CronSecretHeader = "X-Cron-Secret"

// ClientAddress picks the caller address from X-Forwarded-For (first hop),
// CF-Connecting-IP, or the peer address, in that order.
func ClientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HashIdentity pseudonymises a caller address for use as a limiter key.
func HashIdentity(raw string) string {
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:16])
}

// ClientIdentity is HashIdentity(ClientAddress(r)).
func ClientIdentity(r *http.Request) string {
	return HashIdentity(ClientAddress(r))
}

// SecretMatches compares a presented secret with the configured one in
// constant time. An empty configured secret never matches.
func SecretMatches(presented, configured string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
