package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret returns the value of envName. When envName_FILE is set it
// wins, and the named file's trimmed contents are returned instead. A
// secret that is not configured resolves to "".
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	path := os.Getenv(fileEnv)
	if path == "" {
		return os.Getenv(envName), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		// the path is reported, the content never is
		return "", fmt.Errorf("read secret %s=%s: %w", fileEnv, path, err)
	}
	return strings.TrimSpace(string(content)), nil
}

// ResolveSecrets resolves every name, stopping at the first failure.
func ResolveSecrets(names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v, err := ResolveSecret(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}
