package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nssresponder/responderd/internal/config"
)

const validYAML = `
socketPath: /run/nssresponder.sock
refreshWindow: 5s
negCacheTTL: 15s
enumCacheTTL: 30s
memcacheSweep: 1m
domains:
  - name: EXAMPLE
    idMin: 10000
    idMax: 20000
    enumerate: true
provider:
  transport: inproc
discovery:
  endpoints: ["127.0.0.1:2379"]
  domainsPrefix: /nssresponder/domains/
shmCache:
  path: /dev/shm/nssresponder
  slotCount: 4096
  payloadBytes: 512
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, validYAML)

	cfg, err := config.Load(path, "NSSRESPONDER")
	require.NoError(t, err)
	assert.Equal(t, "/run/nssresponder.sock", cfg.SocketPath)
	require.Len(t, cfg.Domains, 1)
	assert.Equal(t, "EXAMPLE", cfg.Domains[0].Name)
	assert.True(t, cfg.Domains[0].Enumerate)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	path := writeConfig(t, `
refreshWindow: 5s
negCacheTTL: 15s
enumCacheTTL: 30s
memcacheSweep: 1m
domains:
  - name: EXAMPLE
    idMin: 10000
    idMax: 20000
provider:
  transport: inproc
discovery:
  endpoints: ["127.0.0.1:2379"]
  domainsPrefix: /nssresponder/domains/
shmCache:
  path: /dev/shm/nssresponder
  slotCount: 4096
  payloadBytes: 512
`)

	_, err := config.Load(path, "NSSRESPONDER")
	assert.Error(t, err, "missing socketPath must fail validation")
}

func TestLoadDefaultsGlobalIDRangeToZero(t *testing.T) {
	path := writeConfig(t, validYAML)

	cfg, err := config.Load(path, "NSSRESPONDER")
	require.NoError(t, err)
	assert.Zero(t, cfg.GlobalIDMin)
	assert.Zero(t, cfg.GlobalIDMax)
}

func TestLoadRejectsGlobalIDMaxBelowGlobalIDMin(t *testing.T) {
	path := writeConfig(t, validYAML+"\nglobalIDMin: 50000\nglobalIDMax: 100\n")

	_, err := config.Load(path, "NSSRESPONDER")
	assert.Error(t, err, "globalIDMax below globalIDMin must fail validation")
}

func TestLoadRejectsKafkaProviderWithoutTopics(t *testing.T) {
	path := writeConfig(t, `
socketPath: /run/nssresponder.sock
refreshWindow: 5s
negCacheTTL: 15s
enumCacheTTL: 30s
memcacheSweep: 1m
domains:
  - name: EXAMPLE
    idMin: 10000
    idMax: 20000
provider:
  transport: kafka
discovery:
  endpoints: ["127.0.0.1:2379"]
  domainsPrefix: /nssresponder/domains/
shmCache:
  path: /dev/shm/nssresponder
  slotCount: 4096
  payloadBytes: 512
`)

	_, err := config.Load(path, "NSSRESPONDER")
	assert.Error(t, err, "kafka transport without topics must fail validation")
}
