package domain

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUsernameTaken        = errors.New("username already exists")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrSessionNotFound      = errors.New("session not found")
	ErrInvalidSession       = errors.New("invalid session")
	ErrPlayerNotFound       = errors.New("tracked player not found")
	ErrPlayerAlreadyTracked = errors.New("player already tracked")
	ErrSettingNotFound      = errors.New("setting not found")
	ErrRegistrationDisabled = errors.New("registration is disabled")
)
