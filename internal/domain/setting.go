package domain

import (
	"context"

	"github.com/google/uuid"
)

const SettingRegistrationDisabled = "registration_disabled"

type SettingsRepository interface {
	// Get returns ErrSettingNotFound when the key has never been set.
	Get(ctx context.Context, key string) (string, error)
	// Upsert writes value; updatedBy may be uuid.Nil.
	Upsert(ctx context.Context, key, value string, updatedBy uuid.UUID) error
}
