package web

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/elys-network/autocompound/internal/types"

	"gopkg.in/yaml.v3"
)

// Credentials maps bearer tokens to callers. Tokens are stored as hex SHA-256 digests, never
// in the clear.
//
//	operators:
//	  - 3a7bd3e2360a3d...
//	participants:
//	  9f86d081884c7d...: alice
type Credentials struct {
	Operators    []string                 `yaml:"operators"`
	Participants map[string]types.Address `yaml:"participants"`
}

// LoadCredentials reads a credentials file.
func LoadCredentials(path string) (*Credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	var creds Credentials
	if err := yaml.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials file %s: %w", path, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("credentials file %s: %w", path, err)
	}
	return &creds, nil
}

// Validate checks that every digest is a SHA-256 hex string and every participant is named.
func (c *Credentials) Validate() error {
	for _, h := range c.Operators {
		if !isDigest(h) {
			return fmt.Errorf("operator token digest %q is not a hex SHA-256", h)
		}
	}
	for h, p := range c.Participants {
		if !isDigest(h) {
			return fmt.Errorf("participant token digest %q is not a hex SHA-256", h)
		}
		if p == "" {
			return fmt.Errorf("participant token digest %q has no address", h)
		}
	}
	return nil
}

// HashToken returns the digest under which a token is stored in a credentials file.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func isDigest(s string) bool {
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == sha256.Size
}

func (c *Credentials) isOperator(digest string) bool {
	found := 0
	for _, h := range c.Operators {
		found |= subtle.ConstantTimeCompare([]byte(strings.ToLower(h)), []byte(digest))
	}
	return found == 1
}

func (c *Credentials) participant(digest string) (types.Address, bool) {
	for h, p := range c.Participants {
		if subtle.ConstantTimeCompare([]byte(strings.ToLower(h)), []byte(digest)) == 1 {
			return p, true
		}
	}
	return "", false
}

type callerKey struct{}

// callerFrom returns the participant authenticated for the request.
func callerFrom(r *http.Request) types.Address {
	caller, _ := r.Context().Value(callerKey{}).(types.Address)
	return caller
}

func bearerDigest(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return HashToken(strings.TrimSpace(token)), true
}

// requireOperator admits only operator tokens. Operators drive the pool hooks and forced flushes.
func (ws *WebServer) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		digest, ok := bearerDigest(r)
		if !ok || ws.credentials == nil {
			ws.writeErrorResponse(w, http.StatusUnauthorized, "Missing or invalid credentials")
			return
		}
		if !ws.credentials.isOperator(digest) {
			webLogger.Warn().Str("path", r.URL.Path).Msg("Rejected non-operator token on operator route")
			ws.writeErrorResponse(w, http.StatusForbidden, "Operator credentials required")
			return
		}
		next(w, r)
	}
}

// requireParticipant admits participant tokens and records the caller on the request context.
// When the route names a participant, it must be the caller.
func (ws *WebServer) requireParticipant(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		digest, ok := bearerDigest(r)
		if !ok || ws.credentials == nil {
			ws.writeErrorResponse(w, http.StatusUnauthorized, "Missing or invalid credentials")
			return
		}
		caller, ok := ws.credentials.participant(digest)
		if !ok {
			ws.writeErrorResponse(w, http.StatusUnauthorized, "Missing or invalid credentials")
			return
		}
		if named := participantVar(r); named != "" && named != caller {
			webLogger.Warn().
				Str("caller", string(caller)).
				Str("participant", string(named)).
				Str("path", r.URL.Path).
				Msg("Rejected request on behalf of another participant")
			ws.writeErrorResponse(w, http.StatusForbidden, "Caller may only act on their own strategy")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	}
}

// actingCaller resolves the participant a pool operation acts for. A participant named in the
// body must be the caller.
func (ws *WebServer) actingCaller(w http.ResponseWriter, r *http.Request, named types.Address) (types.Address, bool) {
	caller := callerFrom(r)
	if named != "" && named != caller {
		ws.writeErrorResponse(w, http.StatusForbidden, "Caller may only act on their own fees")
		return "", false
	}
	return caller, true
}
