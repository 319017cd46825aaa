package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jpekkanen/estiva/pkg/api"
)

// RedisStore keeps the artifact index in Redis while artifact data lives
// on a shared filesystem under root. It uses a simple key structure:
//
//	<prefix>artifact:<id>        => gob-encoded redisArtifactPayload
//	<prefix>idx:all              => SET of all artifact IDs
//	<prefix>idx:substance:<id>   => SET of artifact IDs for a substance
//
// The indexes are always updated on store; ArtifactsFor uses them for
// filtering.
type RedisStore struct {
	client *redis.Client
	prefix string
	root   string
}

var _ api.Storage = (*RedisStore)(nil)

type redisArtifactPayload struct {
	ID           string
	SubstanceID  string
	ForceFieldID string
	Path         string
}

// NewRedisStore creates a RedisStore rooted at root.
// prefix is optional but recommended (e.g. "estiva:").
func NewRedisStore(client *redis.Client, root, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "estiva:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		root:   root,
	}
}

func (s *RedisStore) keyArtifact(id string) string {
	return s.prefix + "artifact:" + id
}

func (s *RedisStore) keyAll() string {
	return s.prefix + "idx:all"
}

func (s *RedisStore) keySubstance(substanceID string) string {
	return s.prefix + "idx:substance:" + substanceID
}

func (s *RedisStore) StoreArtifact(ctx context.Context, substanceID, directory string) (api.StoredArtifact, error) {
	manifest, err := api.LoadManifest(directory)
	if err != nil {
		return api.StoredArtifact{}, fmt.Errorf("read manifest in %s: %w", directory, err)
	}

	id := uuid.NewString()
	dest := filepath.Join(s.root, id)
	if err := copyDirectory(directory, dest); err != nil {
		return api.StoredArtifact{}, fmt.Errorf("copy %s: %w", directory, err)
	}

	payload := redisArtifactPayload{
		ID:           id,
		SubstanceID:  substanceID,
		ForceFieldID: manifest.ForceFieldID,
		Path:         dest,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return api.StoredArtifact{}, err
	}

	if err := s.client.Set(ctx, s.keyArtifact(id), buf.Bytes(), 0).Err(); err != nil {
		return api.StoredArtifact{}, err
	}

	// Index updates (best-effort; lookups go through the payloads).
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyAll(), id)
	pipe.SAdd(ctx, s.keySubstance(substanceID), id)
	_, _ = pipe.Exec(ctx)

	return api.StoredArtifact{
		SubstanceID:  payload.SubstanceID,
		ForceFieldID: payload.ForceFieldID,
		Path:         payload.Path,
	}, nil
}

func (s *RedisStore) ArtifactsFor(ctx context.Context, substanceID string) ([]api.StoredArtifact, error) {
	ids, err := s.client.SMembers(ctx, s.keySubstance(substanceID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyArtifact(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	var artifacts []api.StoredArtifact
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var payload redisArtifactPayload
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, api.StoredArtifact{
			SubstanceID:  payload.SubstanceID,
			ForceFieldID: payload.ForceFieldID,
			Path:         payload.Path,
		})
	}
	return artifacts, nil
}
