// Package auth provides GitHub API credentials for the relay.
// Credentials come from a chain of providers; the first provider that yields
// at least one key wins. Keys are then handed out round-robin by a KeyPool.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// TokenProvider defines the interface for obtaining GitHub API keys.
// Implementations may use different sources (config, environment, CLI tools).
type TokenProvider interface {
	Tokens() ([]string, error)
}

// StaticProvider serves keys loaded from the configuration file.
type StaticProvider struct {
	Keys []string
}

// Tokens returns the configured keys, skipping blanks.
func (s *StaticProvider) Tokens() ([]string, error) {
	keys := cleanKeys(s.Keys)
	if len(keys) == 0 {
		return nil, errors.New("no keys in configuration")
	}
	return keys, nil
}

// EnvProvider reads a comma-separated key list from an environment variable.
type EnvProvider struct {
	// Var is the variable name, e.g. GITHUB_APIKEYS.
	Var string
}

// Tokens splits the variable on commas. Returns an error if the variable is
// not set or holds no usable key.
func (e *EnvProvider) Tokens() ([]string, error) {
	raw := os.Getenv(e.Var)
	if raw == "" {
		return nil, fmt.Errorf("%s environment variable not set or empty", e.Var)
	}
	keys := cleanKeys(strings.Split(raw, ","))
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s contains no keys", e.Var)
	}
	return keys, nil
}

// GhCliProvider obtains a single token by shelling out to `gh auth token`.
// Useful for running `zh2gh inspect` from a developer machine.
type GhCliProvider struct{}

// Tokens shells out to `gh auth token` to retrieve the current token.
func (g *GhCliProvider) Tokens() ([]string, error) {
	cmd := exec.Command("gh", "auth", "token", "--hostname", "github.com")
	output, err := cmd.Output()
	if err != nil {
		if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
			return nil, errors.New("gh CLI not found in PATH")
		}
		return nil, fmt.Errorf("gh auth token failed: %w", err)
	}

	token := strings.TrimSpace(string(output))
	if token == "" {
		return nil, errors.New("gh auth token returned empty token")
	}

	return []string{token}, nil
}

// ResolveKeys walks the providers in order and returns the keys of the first
// one that succeeds. The returned error lists every provider failure.
func ResolveKeys(providers ...TokenProvider) ([]string, error) {
	var failures []string
	for _, p := range providers {
		keys, err := p.Tokens()
		if err == nil {
			return keys, nil
		}
		failures = append(failures, err.Error())
	}

	return nil, fmt.Errorf(
		"failed to obtain GitHub API keys (%s).\n"+
			"Please either:\n"+
			"  1. List keys under github.api_keys in the config file,\n"+
			"  2. Set GITHUB_APIKEYS to a comma-separated list of tokens,\n"+
			"  3. Set GITHUB_TOKEN to a single token, or\n"+
			"  4. Log in with the GitHub CLI ('gh auth login'), used by 'inspect'",
		strings.Join(failures, "; "),
	)
}

func cleanKeys(raw []string) []string {
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
