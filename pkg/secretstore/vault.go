package secretstore

import (
	"context"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

// VaultStore backs Store with a KV-v1 mount on a Vault server, matching
// the "/secrets/" mount the pack's Python source talks to.
type VaultStore struct {
	client     *vaultapi.Client
	mountPoint string // e.g. "secrets", no leading/trailing slash
}

// NewVaultStore builds a client against addr, authenticated with a
// long-lived service token (see package doc). mountPoint is the KV-v1
// mount name, without slashes.
func NewVaultStore(addr, token, mountPoint string) (*VaultStore, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = addr
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("secretstore: build vault client: %w", err)
	}
	client.SetToken(token)
	return &VaultStore{client: client, mountPoint: strings.Trim(mountPoint, "/")}, nil
}

func (s *VaultStore) fullPath(path string) string {
	return fmt.Sprintf("%s/%s", s.mountPoint, strings.Trim(path, "/"))
}

func (s *VaultStore) List(ctx context.Context, path string) ([]string, error) {
	secret, err := s.client.Logical().ListWithContext(ctx, s.fullPath(path))
	if err != nil {
		return nil, fmt.Errorf("secretstore: list %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	raw, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (s *VaultStore) Read(ctx context.Context, path string) (map[string]string, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.fullPath(path))
	if err != nil {
		return nil, fmt.Errorf("secretstore: read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	out := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		if sv, ok := v.(string); ok {
			out[k] = sv
		}
	}
	return out, nil
}

func (s *VaultStore) Write(ctx context.Context, path string, data map[string]string) error {
	payload := make(map[string]interface{}, len(data))
	for k, v := range data {
		payload[k] = v
	}
	_, err := s.client.Logical().WriteWithContext(ctx, s.fullPath(path), payload)
	if err != nil {
		return fmt.Errorf("secretstore: write %s: %w", path, err)
	}
	return nil
}

func (s *VaultStore) Delete(ctx context.Context, path string) error {
	_, err := s.client.Logical().DeleteWithContext(ctx, s.fullPath(path))
	if err != nil {
		return fmt.Errorf("secretstore: delete %s: %w", path, err)
	}
	return nil
}

var _ Store = (*VaultStore)(nil)
