package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
)

// ErrVaultUnconfigured is returned when a config value carries a
// ${VAULT:...} reference but the environment has no Vault address or token.
var ErrVaultUnconfigured = errors.New("config references Vault but VAULT_ADDR or VAULT_TOKEN is not set")

// vaultRef is a parsed ${VAULT:path#key} reference.
type vaultRef struct {
	path string
	key  string
}

// parseVaultRef splits a reference into its secret path and key. A bare
// name with no mount addresses the default KV v2 mount, so "db#password"
// and "secret/data/db#password" read the same secret.
func parseVaultRef(ref string) (vaultRef, error) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok || path == "" || key == "" {
		return vaultRef{}, fmt.Errorf("invalid Vault reference %q: expected path#key", ref)
	}
	if !strings.Contains(path, "/") {
		path = "secret/data/" + path
	}
	return vaultRef{path: path, key: key}, nil
}

// secretReader is the slice of the Vault logical API the resolver needs.
type secretReader interface {
	Read(path string) (*api.Secret, error)
}

func resolveVault(ref string) (string, error) {
	parsed, err := parseVaultRef(ref)
	if err != nil {
		return "", err
	}

	addr := os.Getenv("VAULT_ADDR")
	token := os.Getenv("VAULT_TOKEN")
	if addr == "" || token == "" {
		return "", ErrVaultUnconfigured
	}

	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		return "", fmt.Errorf("creating Vault client: %w", err)
	}
	client.SetToken(token)

	return readVaultSecret(client.Logical(), parsed)
}

// readVaultSecret fetches the secret and extracts the key, unwrapping the
// KV v2 "data" envelope when present.
func readVaultSecret(reader secretReader, ref vaultRef) (string, error) {
	secret, err := reader.Read(ref.path)
	if err != nil {
		return "", fmt.Errorf("reading Vault secret at %s: %w", ref.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret found at %s", ref.path)
	}

	data := secret.Data
	if inner, ok := data["data"].(map[string]interface{}); ok {
		data = inner
	}

	val, ok := data[ref.key]
	if !ok {
		return "", fmt.Errorf("key %q not found in Vault secret at %s", ref.key, ref.path)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("Vault secret %s#%s is not a string", ref.path, ref.key)
	}
	return str, nil
}
