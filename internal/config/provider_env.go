package config

import (
	"context"
	"os"
	"strings"
)

// EnvVarProvider resolves secret references from environment variables. A
// reference such as /prod/envmon/weatherapi is looked up as
// PROD_ENVMON_WEATHERAPI; a reference that is already an environment variable
// name is used as-is.
type EnvVarProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvVarProvider creates an EnvVarProvider backed by os.LookupEnv.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{lookup: os.LookupEnv}
}

// GetParametersBatch returns the references that resolved.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, refs []string) (map[string]string, error) {
	result := make(map[string]string, len(refs))
	for _, ref := range refs {
		if val, ok := p.lookup(envNameFor(ref)); ok {
			result[ref] = val
		}
	}
	return result, nil
}

func envNameFor(ref string) string {
	name := strings.Trim(ref, "/")
	name = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(name)
	return strings.ToUpper(name)
}
