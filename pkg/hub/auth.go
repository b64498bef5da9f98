package hub

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Auth holds the bearer token sent to the review service.
type Auth struct {
	Token string
}

// IsAuthenticated returns true if a token is available.
func (a *Auth) IsAuthenticated() bool {
	return a != nil && a.Token != ""
}

// LoadAuth returns the configured token, falling back to the token file
// written by SaveAuth.
func LoadAuth(token string) (*Auth, error) {
	if token != "" {
		return &Auth{Token: token}, nil
	}
	data, err := os.ReadFile(authConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		return &Auth{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Auth{Token: strings.TrimSpace(string(data))}, nil
}

// SaveAuth stores the token for later runs.
func SaveAuth(auth *Auth) error {
	path := authConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(auth.Token+"\n"), 0600)
}

// ClearAuth removes the stored token (logout).
func ClearAuth() error {
	err := os.Remove(authConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// authConfigPath returns the path to the token file.
func authConfigPath() string {
	if dir := os.Getenv("CUB_DEPLOY_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "ai-token")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cub-deploy", "ai-token")
}
