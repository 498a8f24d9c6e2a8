package config

import "os"

// Credentials holds one exchange's API key material, resolved from the
// environment variables named in its ExchangeConfig. Kept out of the main
// Config struct (and therefore out of anything logged or exposed over the
// control-plane's /config route) to avoid ever serializing a secret.
type Credentials struct {
	APIKey    string
	APISecret string
}

// ResolveCredentials reads the environment variables referenced by an
// ExchangeConfig. It returns an error naming the missing variable rather
// than silently starting with an empty credential.
func ResolveCredentials(ex ExchangeConfig) (Credentials, error) {
	key := os.Getenv(ex.APIKeyEnv)
	if key == "" && ex.APIKeyEnv != "" {
		return Credentials{}, &ValidationError{Issues: []string{
			"exchange " + ex.ID + ": environment variable " + ex.APIKeyEnv + " is unset",
		}}
	}
	secret := os.Getenv(ex.APISecretEnv)
	if secret == "" && ex.APISecretEnv != "" {
		return Credentials{}, &ValidationError{Issues: []string{
			"exchange " + ex.ID + ": environment variable " + ex.APISecretEnv + " is unset",
		}}
	}
	return Credentials{APIKey: key, APISecret: secret}, nil
}
