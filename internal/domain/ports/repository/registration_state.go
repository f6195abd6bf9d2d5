package repository

import (
	"context"

	"goods-registration/internal/domain/model"
)

// RegistrationStateRepository is the port for session-persisted registration
// state. One session owns one state document; every orchestrator mutation is
// written back through Save.
type RegistrationStateRepository interface {
	Save(ctx context.Context, sessionID string, state *model.RegistrationState) error
	Load(ctx context.Context, sessionID string) (*model.RegistrationState, error)
	Clear(ctx context.Context, sessionID string) error
}
