package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "pulse"
	secretLLMKey   = "llm_key"
	secretAPIKey   = "api_key"
	secretFileMode = 0600
)

var (
	errNoSecret = errors.New("secret not found")

	llmKeyFlag = &cli.StringFlag{
		Name:  "llm-key",
		Usage: "API key of the chat completions endpoint",
	}

	apiKeyFlag = &cli.StringFlag{
		Name:  "api-key",
		Usage: "Key clients must send in X-API-Key",
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store the LLM key and the API key in the OS keychain",
		Action:          cmdSaveSecrets,
		Flags: []cli.Flag{
			llmKeyFlag,
			apiKeyFlag,
		},
	}
)

func cmdSaveSecrets(_ context.Context, cmd *cli.Command) error {
	home := getConfig(cmd).HomeDir
	saved := 0
	for _, s := range []struct {
		flag string
		name string
	}{
		{llmKeyFlag.Name, secretLLMKey},
		{apiKeyFlag.Name, secretAPIKey},
	} {
		v := strings.TrimSpace(cmd.String(s.flag))
		if v == "" {
			continue
		}
		if err := saveSecret(home, s.name, v); err != nil {
			return fmt.Errorf("saving %s: %w", s.name, err)
		}
		saved++
	}
	if saved == 0 {
		return fmt.Errorf("one of --%s or --%s is required", llmKeyFlag.Name, apiKeyFlag.Name)
	}

	fmt.Fprintln(stdout, "Secrets saved")
	return nil
}

func saveSecret(home, name, value string) error {
	if err := keyring.Set(keyringService, name, value); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return os.WriteFile(filepath.Join(home, name), []byte(value), secretFileMode)
	}

	// Clean up legacy file if it exists
	os.Remove(filepath.Join(home, name))
	return nil
}

// getSecret reads name from the keychain, then from the file fallback.
func getSecret(home, name string) (string, error) {
	v, err := keyring.Get(keyringService, name)
	if err == nil && v != "" {
		return v, nil
	}

	b, err := os.ReadFile(filepath.Join(home, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", errNoSecret
	}
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// resolveSecrets fills keys missing from the config with stored secrets.
func resolveSecrets(app *appConfig) {
	cfg := app.Config
	if cfg.Chat.APIKey == "" {
		if v, err := getSecret(app.HomeDir, secretLLMKey); err == nil {
			cfg.Chat.APIKey = v
		}
	}
	if cfg.Security.APIKeyEnabled && cfg.Security.APIKey == "" {
		if v, err := getSecret(app.HomeDir, secretAPIKey); err == nil {
			cfg.Security.APIKey = v
		}
	}
}
