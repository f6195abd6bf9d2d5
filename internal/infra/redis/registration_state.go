package redis

import (
	"context"
	"encoding/json"
	"time"

	"goods-registration/internal/domain"
	"goods-registration/internal/domain/model"
	"goods-registration/internal/domain/ports/repository"
)

// Ensure the adapter implements the port interface.
var _ repository.RegistrationStateRepository = (*RegistrationStateRepo)(nil)

// RegistrationStateRepo persists the full registration state document as a
// JSON blob per session, refreshed with a TTL on every save.
type RegistrationStateRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewRegistrationStateRepo(client RedisClient, ttl time.Duration) *RegistrationStateRepo {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RegistrationStateRepo{client: client, ttl: ttl}
}

func stateKey(sessionID string) string { return "reg_state:" + sessionID }

func (s *RegistrationStateRepo) Save(ctx context.Context, sessionID string, state *model.RegistrationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, stateKey(sessionID), data, s.ttl)
}

func (s *RegistrationStateRepo) Load(ctx context.Context, sessionID string) (*model.RegistrationState, error) {
	data, err := s.client.Get(ctx, stateKey(sessionID))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var state model.RegistrationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	// External payloads may predate schema additions; fill defaults.
	return model.Ensure(&state), nil
}

func (s *RegistrationStateRepo) Clear(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, stateKey(sessionID))
}
