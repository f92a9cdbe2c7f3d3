package config

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// ResolveSecret reads a secret following the *_FILE convention: when
// envName+"_FILE" is set the secret is the trimmed content of that
// file, otherwise it is the value of envName directly. Neither being
// set yields an empty string; only an unreadable file is an error.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if path := os.Getenv(fileEnv); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, path, err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	return os.Getenv(envName), nil
}

// MustResolveSecret is ResolveSecret for required startup secrets: it
// exits the process when the secret cannot be read. The secret value
// itself never reaches the log.
func MustResolveSecret(envName string) string {
	value, err := ResolveSecret(envName)
	if err != nil {
		log.Fatalf("error: %v", err)
	}
	return value
}
