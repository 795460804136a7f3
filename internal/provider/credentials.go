package provider

import (
	"fmt"
	"os"
	"strings"

	"github.com/Cyclone1070/coda/internal/config"
)

// envVars lists the environment variables consulted for each provider,
// in priority order.
var envVars = map[string][]string{
	"gemini":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai":     {"OPENAI_API_KEY"},
	"anthropic":  {"ANTHROPIC_API_KEY"},
	"groq":       {"GROQ_API_KEY"},
	"mistral":    {"MISTRAL_API_KEY"},
	"deepseek":   {"DEEPSEEK_API_KEY"},
	"cohere":     {"COHERE_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
}

// keyless providers run locally and need no credentials.
var keyless = map[string]bool{
	"ollama": true,
}

// EnvVarsFor returns the environment variables checked for name.
func EnvVarsFor(name string) []string {
	if vars, ok := envVars[name]; ok {
		return vars
	}
	return []string{strings.ToUpper(name) + "_API_KEY"}
}

// ResolveAPIKey finds the key for the configured provider. Sources are
// tried in order: environment, per-provider stored key, legacy key.
// getenv defaults to os.Getenv.
func ResolveAPIKey(cfg config.ProviderConfig, getenv func(string) string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	name := cfg.Name

	for _, v := range EnvVarsFor(name) {
		if key := strings.TrimSpace(getenv(v)); key != "" {
			return key, nil
		}
	}
	if key := strings.TrimSpace(cfg.APIKeys[name]); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key, nil
	}
	if keyless[name] {
		return "", nil
	}
	return "", fmt.Errorf("%w for provider %q: set %s or provider.api_keys.%s in ~/.config/coda/config.json",
		ErrMissingCredentials, name, strings.Join(EnvVarsFor(name), " or "), name)
}
