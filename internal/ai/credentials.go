package ai

import "os"

// CredentialSource looks up the API key for a provider. An empty key with a
// nil error means none is configured.
type CredentialSource interface {
	Credential(provider string) (string, error)
}

// CredentialFunc adapts a function to CredentialSource
type CredentialFunc func(provider string) (string, error)

func (f CredentialFunc) Credential(provider string) (string, error) {
	return f(provider)
}

// StaticCredential always returns key
func StaticCredential(key string) CredentialSource {
	return CredentialFunc(func(string) (string, error) { return key, nil })
}

// Env var names checked per provider, project-prefixed first
var envKeys = map[string][]string{
	ProviderGemini: {"FORMFILL_GEMINI_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	ProviderClaude: {"FORMFILL_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"},
	ProviderOpenAI: {"FORMFILL_OPENAI_KEY", "OPENAI_API_KEY"},
}

// EnvCredentials reads keys from the environment
func EnvCredentials() CredentialSource {
	return CredentialFunc(func(provider string) (string, error) {
		for _, name := range envKeys[provider] {
			if v := os.Getenv(name); v != "" {
				return v, nil
			}
		}
		return "", nil
	})
}

// ChainCredentials returns the first non-empty key among sources. A source
// error stops the lookup.
func ChainCredentials(sources ...CredentialSource) CredentialSource {
	return CredentialFunc(func(provider string) (string, error) {
		for _, s := range sources {
			if s == nil {
				continue
			}
			key, err := s.Credential(provider)
			if err != nil {
				return "", err
			}
			if key != "" {
				return key, nil
			}
		}
		return "", nil
	})
}
