package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sessionguard/authgate/internal/core/domain"
)

const defaultPrefix = "magiclink"

// consumeLinkLua atomically turns a live link into a tombstone.
// KEYS[1] = link key, KEYS[2] = tombstone key
//
// Returns the stored record on success, or an error reply:
//
//	"consumed"  tombstone present, the link was redeemed before
//	"not_found" unknown or expired
var consumeLinkLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  if redis.call('EXISTS', KEYS[2]) == 1 then
    return {err='consumed'}
  end
  return {err='not_found'}
end

local ttl = redis.call('PTTL', KEYS[1])
redis.call('DEL', KEYS[1])
if ttl > 0 then
  redis.call('SET', KEYS[2], '1', 'PX', ttl)
end
return data
`)

// MagicLinkStore implements ports.MagicLinkRepository on Redis. Keys expire
// with the link; a tombstone outlives consumption for the remaining TTL so
// that reuse is reported as domain.ErrAlreadyConsumed.
type MagicLinkStore struct {
	client redis.UniversalClient
	prefix string
}

func NewMagicLinkStore(client redis.UniversalClient, prefix string) *MagicLinkStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &MagicLinkStore{client: client, prefix: prefix}
}

type linkRecord struct {
	Email         string    `json:"email"`
	PendingUserID string    `json:"pending_user_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s *MagicLinkStore) Insert(ctx context.Context, link *domain.MagicLink) error {
	ttl := link.ExpiresAt.Sub(link.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("insert magic link: %w", domain.ErrInvalidInput)
	}

	data, err := json.Marshal(linkRecord{
		Email:         link.Email,
		PendingUserID: link.PendingUserID,
		CreatedAt:     link.CreatedAt.UTC(),
		ExpiresAt:     link.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode magic link: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(link.TokenHash), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("insert magic link: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("insert magic link: token hash collision")
	}
	return nil
}

func (s *MagicLinkStore) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.MagicLink, error) {
	res, err := consumeLinkLua.Run(ctx, s.client,
		[]string{s.key(tokenHash), s.tombstoneKey(tokenHash)},
	).Result()
	if err != nil {
		switch err.Error() {
		case "consumed":
			return nil, domain.ErrAlreadyConsumed
		case "not_found":
			return nil, domain.ErrInvalidToken
		}
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrInvalidToken
		}
		return nil, fmt.Errorf("consume magic link: %w: %w", domain.ErrStoreUnavailable, err)
	}

	data, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("consume magic link: %w: unexpected script result %T", domain.ErrStoreUnavailable, res)
	}

	var rec linkRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, domain.ErrInvalidToken
	}

	link := &domain.MagicLink{
		TokenHash:     tokenHash,
		Email:         rec.Email,
		PendingUserID: rec.PendingUserID,
		CreatedAt:     rec.CreatedAt,
		ExpiresAt:     rec.ExpiresAt,
		ConsumedAt:    &now,
	}
	// Key expiry and the application clock can disagree by a little.
	if link.Expired(now) {
		return nil, domain.ErrInvalidToken
	}
	return link, nil
}

// Hash tags keep both keys in one cluster slot for the script.
func (s *MagicLinkStore) key(hash string) string {
	return fmt.Sprintf("%s:{%s}", s.prefix, hash)
}

func (s *MagicLinkStore) tombstoneKey(hash string) string {
	return fmt.Sprintf("%s:{%s}:used", s.prefix, hash)
}
