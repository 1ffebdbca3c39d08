// Package envfile loads an optional .env file and validates the
// environment variables the host requires before it starts.
package envfile

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// TokenEnvVar is the environment variable holding the Discord bot
// client token.
const TokenEnvVar = "DISCORD_BOT_CLIENT_TOKEN"

// Load loads the .env file at path, if present. A missing file is not
// an error; any other read/parse failure is.
func Load(logger *slog.Logger, path string) error {
	logger.Info("loading env file", "path", path)

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logger.Debug("no env file found", "path", path)
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	return nil
}

// ValidateToken reads and validates DISCORD_BOT_CLIENT_TOKEN: it must
// be set, non-empty, valid UTF-8, and must not contain '=' or NUL.
func ValidateToken(logger *slog.Logger) (string, error) {
	logger.Info("validating environment variables", "var", TokenEnvVar)

	value, ok := os.LookupEnv(TokenEnvVar)
	if !ok || value == "" {
		return "", fmt.Errorf("%s is not set", TokenEnvVar)
	}

	if !isValidUTF8(value) {
		return "", fmt.Errorf("%s is not valid unicode", TokenEnvVar)
	}

	if strings.ContainsAny(value, "=\x00") {
		return "", fmt.Errorf("%s contains an illegal character ('=' or NUL)", TokenEnvVar)
	}

	redactedLen := min(3, len(value))
	logger.Debug("token found", "var", TokenEnvVar, "prefix", value[:redactedLen]+"...")

	return value, nil
}

func isValidUTF8(s string) bool {
	return strings.ToValidUTF8(s, "�") == s
}
