package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/rorelay/rorelay-server/internal/core"
	"github.com/rorelay/rorelay-server/internal/store/flatfile"
)

// ErrTokenNotRecognized means a handshake token parsed as neither a
// valid JWT nor a known auth-cache entry.
var ErrTokenNotRecognized = errors.New("auth: token not recognized")

// Service resolves handshake tokens to an authorization level and
// nickname, trying a JWT issued by the external auth system first and
// falling back to a flat-file auth cache (§6 "user-auth token
// resolver"). Either collaborator may be nil.
type Service struct {
	jwtConfig *JWTConfig
	cache     *flatfile.AuthCache
}

// NewService constructs a Service over the given JWT verifier and/or
// auth cache.
func NewService(jwtConfig *JWTConfig, cache *flatfile.AuthCache) *Service {
	return &Service{jwtConfig: jwtConfig, cache: cache}
}

// Resolve implements core.AuthResolver. An empty token resolves to an
// unauthenticated guest rather than an error — Admit treats a Resolve
// error as "treat as unauthenticated", so the distinction only matters
// for logging.
func (s *Service) Resolve(token string) (core.AuthFlags, string, error) {
	if token == "" {
		return core.AuthNone, "", nil
	}

	if s.jwtConfig != nil {
		if claims, err := ValidateToken(s.jwtConfig, token); err == nil {
			return core.AuthFlags(claims.AuthLevel), claims.Nickname, nil
		}
	}

	if s.cache != nil {
		if entry, ok := s.cache.Lookup(token); ok {
			return core.AuthFlags(entry.AuthLevel), entry.Username, nil
		}
		if entry, ok := s.lookupHashed(token); ok {
			return core.AuthFlags(entry.AuthLevel), entry.Username, nil
		}
	}

	return core.AuthNone, "", ErrTokenNotRecognized
}

// lookupHashed scans the cache for an entry whose token field is a
// bcrypt hash (operators may record either the literal token or its
// hash) and matches the presented token against it.
func (s *Service) lookupHashed(token string) (flatfile.AuthCacheEntry, bool) {
	for _, entry := range s.cache.Entries() {
		if !strings.HasPrefix(entry.Token, "$2") {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(entry.Token), []byte(token)) == nil {
			return entry, true
		}
	}
	return flatfile.AuthCacheEntry{}, false
}

// EmitEvent implements core.AuthResolver. Ranked-play ledger
// bookkeeping lives in the external auth system this collaborator
// fronts (§1 Non-goals: "user-auth token issuance"), so there is
// nothing local to update here.
func (s *Service) EmitEvent(uniqueID string, kind core.AuthKind, nick, vehicle string) {}
