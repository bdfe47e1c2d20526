package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bothand.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
store:
  path: /var/lib/bothand
manager:
  registry_path: ./registry.json
  staleness_seconds: 60
rpc:
  grpc_addr: 0.0.0.0:50051
  rest_addr: 0.0.0.0:8080
sources:
  - name: binance
    type: streaming
    url: wss://stream.binance.com:9443/ws
  - name: coingecko
    type: polling
    url: https://api.coingecko.com/api/v3
    poll_interval_seconds: 30
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.Sources))
	}
	if cfg.Manager.Staleness().Seconds() != 60 {
		t.Fatalf("staleness = %v, want 60s", cfg.Manager.Staleness())
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, `
store:
  path: /var/lib/bothand
  bogus_field: true
manager:
  registry_path: ./registry.json
  staleness_seconds: 60
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsMissingRegistrySource(t *testing.T) {
	path := writeTempConfig(t, `
store:
  path: /var/lib/bothand
manager:
  staleness_seconds: 60
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when neither registry_path nor registry_ipfs_hash is set")
	}
}

func TestLoadRejectsDuplicateSourceNames(t *testing.T) {
	path := writeTempConfig(t, `
store:
  path: /var/lib/bothand
manager:
  registry_path: ./registry.json
  staleness_seconds: 60
sources:
  - name: binance
    type: streaming
    url: wss://a
  - name: binance
    type: polling
    url: https://b
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for duplicate source name")
	}
}

func TestLoadRejectsIPFSHashWithoutGateway(t *testing.T) {
	path := writeTempConfig(t, `
store:
  path: /var/lib/bothand
manager:
  registry_ipfs_hash: Qm123
  staleness_seconds: 60
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when registry_ipfs_hash is set without ipfs_gateway_url")
	}
}
