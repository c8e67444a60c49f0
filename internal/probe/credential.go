package probe

import (
	"context"
	"errors"
	"os"
)

// ErrNoCredential is returned when no access credential is available.
var ErrNoCredential = errors.New("probe credential unavailable")

// CredentialSource supplies the access key attached to authenticated probes.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// StaticCredential is a credential fixed at startup.
type StaticCredential string

// Credential returns the key, or ErrNoCredential when it is empty.
func (s StaticCredential) Credential(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

// EnvCredential reads the key from an environment variable on every call,
// so a rotated secret is picked up without a restart.
type EnvCredential string

// Credential returns the variable's value, or ErrNoCredential when unset.
func (e EnvCredential) Credential(context.Context) (string, error) {
	v, ok := os.LookupEnv(string(e))
	if !ok || v == "" {
		return "", ErrNoCredential
	}
	return v, nil
}
