package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rorelay/rorelay-server/internal/core"
	"github.com/rorelay/rorelay-server/internal/store/flatfile"
)

func newTestAuthCache(t *testing.T, content string) *flatfile.AuthCache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authorizations.txt")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	cache, err := flatfile.LoadAuthCache(path)
	if err != nil {
		t.Fatalf("load auth cache: %v", err)
	}
	return cache
}

func TestResolveEmptyTokenIsUnauthenticatedGuest(t *testing.T) {
	svc := NewService(nil, nil)
	flags, nick, err := svc.Resolve("")
	if err != nil || flags != core.AuthNone || nick != "" {
		t.Fatalf("got (%v, %q, %v), want (AuthNone, \"\", nil)", flags, nick, err)
	}
}

func TestResolveUnknownTokenIsNotRecognized(t *testing.T) {
	svc := NewService(nil, newTestAuthCache(t, ""))
	_, _, err := svc.Resolve("nope")
	if !errors.Is(err, ErrTokenNotRecognized) {
		t.Fatalf("got %v, want ErrTokenNotRecognized", err)
	}
}

func TestResolveFlatCacheHit(t *testing.T) {
	cache := newTestAuthCache(t, "2 tok-mod modnick\n")
	svc := NewService(nil, cache)

	flags, nick, err := svc.Resolve("tok-mod")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if flags != core.AuthMod || nick != "modnick" {
		t.Fatalf("got (%v, %q), want (AuthMod, \"modnick\")", flags, nick)
	}
}

func TestResolveHashedCacheEntry(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	cache := newTestAuthCache(t, "")
	if err := cache.Put(flatfile.AuthCacheEntry{AuthLevel: uint32(core.AuthAdmin), Token: hash, Username: "root"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	svc := NewService(nil, cache)

	flags, nick, err := svc.Resolve("s3cret")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if flags != core.AuthAdmin || nick != "root" {
		t.Fatalf("got (%v, %q), want (AuthAdmin, \"root\")", flags, nick)
	}
}

func TestResolvePrefersJWTOverCache(t *testing.T) {
	jwtCfg := &JWTConfig{Secret: []byte("test-secret-change-me"), Issuer: "rorelay"}
	token, err := GenerateToken(jwtCfg, time.Hour, uint32(core.AuthAdmin), "alice")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	cache := newTestAuthCache(t, "2 "+token+" impostor\n")
	svc := NewService(jwtCfg, cache)

	flags, nick, err := svc.Resolve(token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if flags != core.AuthAdmin || nick != "alice" {
		t.Fatalf("got (%v, %q), want the JWT's claims, not the cache entry", flags, nick)
	}
}
