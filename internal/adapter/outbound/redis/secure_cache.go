package redis

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/s2"
	"github.com/rs/zerolog"
)

const (
	envelopeVersion      = 1
	compressionThreshold = 4 << 10 // 4KiB
	tagIndexPrefix       = "tag:"
	tagIndexTTL          = 24 * time.Hour
)

// Sensitive key prefixes whose payloads are encrypted at rest in the cache.
var sensitivePrefixes = []string{"user:", "session:", "auth:"}

// envelope wraps a cached payload with its encoding flags.
type envelope struct {
	Version    int    `json:"v"`
	Encrypted  bool   `json:"enc"`
	Compressed bool   `json:"cmp"`
	Data       []byte `json:"data"`
}

// SecureService layers an authenticated-encryption envelope and transparent
// compression on top of the base cache Service. Values under sensitive key
// prefixes are sealed with AES-GCM; payloads above the threshold are
// compressed and the achieved ratio is recorded.
type SecureService struct {
	base   *Service
	aead   cipher.AEAD
	logger zerolog.Logger
}

// NewSecureService creates a SecureService. The key must be 16, 24 or 32
// bytes (AES-128/192/256).
func NewSecureService(base *Service, key []byte, logger zerolog.Logger) (*SecureService, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gcm: %w", err)
	}
	return &SecureService{
		base:   base,
		aead:   aead,
		logger: logger.With().Str("component", "secure-cache").Logger(),
	}, nil
}

// Get retrieves and unwraps a cached value.
func (s *SecureService) Get(ctx context.Context, key string, dest any) bool {
	var env envelope
	if !s.base.Get(ctx, key, &env) {
		return false
	}

	payload, err := s.open(key, env)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dropping unreadable envelope")
		s.base.Delete(ctx, key)
		return false
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		s.base.Delete(ctx, key)
		return false
	}
	return true
}

// Set wraps value in an envelope and stores it.
func (s *SecureService) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	env, err := s.seal(key, value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to seal cache value")
		return false
	}
	return s.base.Set(ctx, key, env, ttl)
}

// SetWithTags stores value and registers key under each tag's index set,
// so the whole group can be invalidated at once.
func (s *SecureService) SetWithTags(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) bool {
	if !s.Set(ctx, key, value, ttl) {
		return false
	}

	conn, err := s.base.pool.Acquire(ctx)
	if err != nil {
		s.base.fail(err)
		return false
	}
	defer s.base.pool.Release(conn)

	for _, tag := range tags {
		indexKey := tagIndexPrefix + tag
		if err := conn.Client().SAdd(ctx, indexKey, key).Err(); err != nil {
			s.base.fail(err)
			return false
		}
		// The index is TTL-bounded so orphaned tags reclaim themselves.
		_ = conn.Client().Expire(ctx, indexKey, tagIndexTTL).Err()
	}
	return true
}

// InvalidateByTag deletes every key registered under the tag, plus the
// index set itself. Returns how many entries were removed.
func (s *SecureService) InvalidateByTag(ctx context.Context, tag string) int {
	if !s.base.Available(ctx) {
		return 0
	}

	conn, err := s.base.pool.Acquire(ctx)
	if err != nil {
		s.base.fail(err)
		return 0
	}
	defer s.base.pool.Release(conn)

	indexKey := tagIndexPrefix + tag
	members, err := conn.Client().SMembers(ctx, indexKey).Result()
	if err != nil {
		s.base.fail(err)
		return 0
	}

	keys := append(members, indexKey)
	n, err := conn.Client().Del(ctx, keys...).Result()
	if err != nil {
		s.base.fail(err)
		return 0
	}
	return int(n)
}

// GetOrSet mirrors the base cache-aside helper with envelope handling.
func (s *SecureService) GetOrSet(ctx context.Context, key string, ttl time.Duration, fallback func(ctx context.Context) (any, error), dest any) error {
	if s.Get(ctx, key, dest) {
		return nil
	}

	value, err := fallback(ctx)
	if err != nil {
		return err
	}

	s.Set(ctx, key, value, ttl)

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Delete removes keys from the underlying store.
func (s *SecureService) Delete(ctx context.Context, keys ...string) int {
	return s.base.Delete(ctx, keys...)
}

// FlushPattern delegates to the underlying store.
func (s *SecureService) FlushPattern(ctx context.Context, pattern string) int {
	return s.base.FlushPattern(ctx, pattern)
}

// Available delegates to the underlying store.
func (s *SecureService) Available(ctx context.Context) bool {
	return s.base.Available(ctx)
}

// seal marshals value and applies compression and, for sensitive key
// prefixes, authenticated encryption.
func (s *SecureService) seal(key string, value any) (envelope, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return envelope{}, err
	}

	env := envelope{Version: envelopeVersion}

	if len(payload) >= compressionThreshold {
		compressed := s2.Encode(nil, payload)
		cacheCompressionRatio.Observe(float64(len(compressed)) / float64(len(payload)))
		payload = compressed
		env.Compressed = true
	}

	if isSensitiveKey(key) {
		sealed, err := s.encrypt(payload)
		if err != nil {
			return envelope{}, err
		}
		payload = sealed
		env.Encrypted = true
	}

	env.Data = payload
	return env, nil
}

// open reverses seal.
func (s *SecureService) open(key string, env envelope) ([]byte, error) {
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}

	payload := env.Data

	if env.Encrypted {
		plain, err := s.decrypt(payload)
		if err != nil {
			return nil, err
		}
		payload = plain
	}

	if env.Compressed {
		decoded, err := s2.Decode(nil, payload)
		if err != nil {
			return nil, err
		}
		payload = decoded
	}

	return payload, nil
}

func (s *SecureService) encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *SecureService) decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, errors.New("sealed payload too short")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	return s.aead.Open(nil, nonce, ciphertext, nil)
}

func isSensitiveKey(key string) bool {
	for _, prefix := range sensitivePrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
