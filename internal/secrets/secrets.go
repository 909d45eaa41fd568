package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Get retrieves a secret value, supporting both direct env vars and file-based
// secrets (the Docker secrets pattern): if KEY_FILE is set, the referenced
// file's contents win over the plain env var.
func Get(envKey string, defaultValue string) (string, error) {
	filePathKey := envKey + "_FILE"
	if filePath := os.Getenv(filePathKey); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read secret file %s: %w", filePath, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if value := os.Getenv(envKey); value != "" {
		return value, nil
	}

	return defaultValue, nil
}

// GetOptional retrieves a secret with a default value, never fails
func GetOptional(envKey string, defaultValue string) string {
	value, err := Get(envKey, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}
