// Package auth verifies bearer credentials against bcrypt-hashed API key
// records. Because bcrypt verification is deliberately expensive and runs
// on every request, validated credentials are cached by SHA-256 digest
// with a short TTL.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/llmgateway/internal/store"
	"github.com/BaSui01/llmgateway/llm"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// cacheTTL bounds how long a validated credential skips bcrypt.
const cacheTTL = 60 * time.Second

// ErrInvalidKey is returned for missing, unknown and inactive credentials.
// The message is identical in all three cases so callers cannot probe key
// state.
var ErrInvalidKey = &llm.Error{
	Code:       llm.ErrUnauthorized,
	Message:    "invalid or missing API key",
	HTTPStatus: http.StatusUnauthorized,
}

type cacheEntry struct {
	digest    []byte
	apiKeyID  string
	expiresAt time.Time
}

// Authenticator validates bearer credentials.
type Authenticator struct {
	store  *store.Store
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New creates an authenticator backed by the key store.
func New(st *store.Store, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		store:  st,
		logger: logger.With(zap.String("component", "auth")),
		cache:  make(map[string]cacheEntry),
	}
}

// Authenticate resolves a bearer credential to its APIKey record. Cache
// hits still re-read the row so a key flipped inactive is rejected without
// waiting for the TTL; cache misses pay the bcrypt comparison against
// every active key.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*store.APIKey, error) {
	if credential == "" {
		return nil, ErrInvalidKey
	}

	sum := sha256.Sum256([]byte(credential))
	digest := sum[:]
	cacheKey := hex.EncodeToString(digest)

	if keyID, ok := a.cachedKeyID(cacheKey, digest); ok {
		key, err := a.store.APIKeyByID(ctx, keyID)
		if err == nil && key.IsActive {
			return key, nil
		}
		a.invalidate(cacheKey)
		return nil, ErrInvalidKey
	}

	keys, err := a.store.ActiveAPIKeys(ctx)
	if err != nil {
		a.logger.Error("failed to load API keys", zap.Error(err))
		return nil, ErrInvalidKey
	}

	for i := range keys {
		if bcrypt.CompareHashAndPassword([]byte(keys[i].KeyHash), []byte(credential)) == nil {
			a.remember(cacheKey, digest, keys[i].ID)
			return &keys[i], nil
		}
	}

	return nil, ErrInvalidKey
}

func (a *Authenticator) cachedKeyID(cacheKey string, digest []byte) (string, bool) {
	a.mu.RLock()
	entry, ok := a.cache[cacheKey]
	a.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	if subtle.ConstantTimeCompare(entry.digest, digest) != 1 {
		return "", false
	}
	return entry.apiKeyID, true
}

func (a *Authenticator) remember(cacheKey string, digest []byte, apiKeyID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Opportunistic sweep keeps the map bounded without a background goroutine.
	now := time.Now()
	for k, e := range a.cache {
		if now.After(e.expiresAt) {
			delete(a.cache, k)
		}
	}

	a.cache[cacheKey] = cacheEntry{
		digest:    digest,
		apiKeyID:  apiKeyID,
		expiresAt: now.Add(cacheTTL),
	}
}

func (a *Authenticator) invalidate(cacheKey string) {
	a.mu.Lock()
	delete(a.cache, cacheKey)
	a.mu.Unlock()
}

// HashKey bcrypt-hashes a plaintext key for provisioning.
func HashKey(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
