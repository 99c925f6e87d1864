package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"social-support-workers/internal/common/llm"
	"social-support-workers/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const (
	decisionKeyPrefix = "decision:"
	sessionKeyPrefix  = "chat:session:"
)

// DecisionCache memoizes pipeline results for identical inputs. A nil cache
// or an unreachable Redis behaves like a permanent miss.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewDecisionCache(client *redis.Client, ttl time.Duration, log logger.Logger) *DecisionCache {
	return &DecisionCache{client: client, ttl: ttl, logger: log}
}

// DecisionKey hashes the inputs that determine a decision.
func DecisionKey(income float64, familySize int, documents []string) string {
	raw, _ := json.Marshal(struct {
		Income     float64  `json:"income"`
		FamilySize int      `json:"family_size"`
		Documents  []string `json:"documents"`
	}{income, familySize, documents})
	sum := sha256.Sum256(raw)
	return decisionKeyPrefix + hex.EncodeToString(sum[:])
}

// Get decodes the cached value for key into dst and reports a hit.
func (c *DecisionCache) Get(ctx context.Context, key string, dst interface{}) bool {
	if c == nil || c.client == nil {
		return false
	}
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("decision cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return false
	}
	if err := json.Unmarshal(val, dst); err != nil {
		c.logger.Warn("decision cache entry unreadable", map[string]interface{}{"error": err.Error(), "key": key})
		return false
	}
	return true
}

func (c *DecisionCache) Put(ctx context.Context, key string, v interface{}) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("decision cache encode failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("decision cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

// SessionStore keeps the most recent chat turns of a session so follow-up
// messages reach the model with context.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	maxTurns int
}

func NewSessionStore(client *redis.Client, ttl time.Duration, maxTurns int) *SessionStore {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &SessionStore{client: client, ttl: ttl, maxTurns: maxTurns}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (s *SessionStore) Append(ctx context.Context, sessionID string, msgs ...llm.Message) error {
	if s == nil || s.client == nil || len(msgs) == 0 {
		return nil
	}
	key := sessionKey(sessionID)

	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode session turn: %w", err)
		}
		values = append(values, string(b))
	}

	if err := s.client.RPush(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("session append: %w", err)
	}
	if err := s.client.LTrim(ctx, key, int64(-s.maxTurns), -1).Err(); err != nil {
		return fmt.Errorf("session trim: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("session expire: %w", err)
		}
	}
	return nil
}

// Recent returns the stored turns oldest first. Unreadable entries are skipped.
func (s *SessionStore) Recent(ctx context.Context, sessionID string) ([]llm.Message, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	vals, err := s.client.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session read: %w", err)
	}

	out := make([]llm.Message, 0, len(vals))
	for _, v := range vals {
		var m llm.Message
		if json.Unmarshal([]byte(v), &m) == nil {
			out = append(out, m)
		}
	}
	return out, nil
}
