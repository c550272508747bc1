package speech

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// transcriptTTL is how long a session's running transcript key survives
// in Redis after last being touched; a session that never cleanly ends
// (crashed client) still gets cleaned up.
const transcriptTTL = 24 * time.Hour

// StateStore persists each session's running transcript so the
// last-spoken text can seed the next segment's STT prompt even across a
// worker restart (the queue-group semantics mean a reconnect may land
// on a different replica).
type StateStore struct {
	redis *redis.Client
}

// NewStateStore wraps an existing redis client.
func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{redis: client}
}

func transcriptKey(sessionID string) string {
	return "transcript:" + sessionID
}

// AppendTranscript appends text (space-separated) to the session's
// running transcript and refreshes its TTL.
func (s *StateStore) AppendTranscript(ctx context.Context, sessionID, text string) error {
	key := transcriptKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.Append(ctx, key, " "+text)
	pipe.Expire(ctx, key, transcriptTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// LastSuffix returns up to maxRunes of the tail of the session's running
// transcript, used as the STT continuation prompt.
func (s *StateStore) LastSuffix(ctx context.Context, sessionID string, maxRunes int) (string, error) {
	full, err := s.redis.Get(ctx, transcriptKey(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	runes := []rune(full)
	if len(runes) <= maxRunes {
		return string(runes), nil
	}
	return string(runes[len(runes)-maxRunes:]), nil
}

// Delete removes the session's running transcript, called when a call
// ends.
func (s *StateStore) Delete(ctx context.Context, sessionID string) error {
	return s.redis.Del(ctx, transcriptKey(sessionID)).Err()
}
