package memory

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"letsee/internal/model"
)

const storeKey = "letsee:arguments"

// Match is one similar prior argument returned by a search.
type Match struct {
	Score     float32    `json:"score"`
	SessionID string     `json:"sessionId"`
	Turn      int        `json:"turn"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
}

// Store persists argument embeddings and answers similarity queries.
type Store interface {
	Upsert(ctx context.Context, sessionID string, turns []model.Turn) error
	Search(ctx context.Context, content string, limit int) ([]Match, error)
}

type entry struct {
	Vector    []float32  `json:"vector"`
	SessionID string     `json:"sessionId"`
	Turn      int        `json:"turn"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
}

type redisStore struct {
	client *redis.Client
}

// NewStore creates a Redis-backed argument store. Returns nil when no Redis
// client is available so callers can skip memory operations entirely.
func NewStore(client *redis.Client) Store {
	if client == nil {
		return nil
	}
	return &redisStore{client: client}
}

func (s *redisStore) Upsert(ctx context.Context, sessionID string, turns []model.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(entry{
			Vector:    Embed(turn.Content),
			SessionID: sessionID,
			Turn:      turn.Index,
			Role:      turn.Role,
			Content:   turn.Content,
		})
		if err != nil {
			return err
		}
		fields[argumentID(sessionID, turn.Index)] = data
	}
	return s.client.HSet(ctx, storeKey, fields).Err()
}

func (s *redisStore) Search(ctx context.Context, content string, limit int) ([]Match, error) {
	all, err := s.client.HGetAll(ctx, storeKey).Result()
	if err != nil {
		return nil, err
	}
	query := Embed(content)
	matches := make([]Match, 0, len(all))
	for _, raw := range all {
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		matches = append(matches, Match{
			Score:     Cosine(query, e.Vector),
			SessionID: e.SessionID,
			Turn:      e.Turn,
			Role:      e.Role,
			Content:   e.Content,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func argumentID(sessionID string, index int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s-%d", sessionID, index)))
	return fmt.Sprintf("%x", sum)
}
