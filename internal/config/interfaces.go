package config

import "context"

// SecretProvider resolves secret references into plaintext values. Missing
// references are omitted from the returned map rather than reported as errors.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, refs []string) (map[string]string, error)
}
