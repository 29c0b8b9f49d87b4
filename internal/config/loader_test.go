package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
webhook:
  secret: s3cr3t
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hookgate", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, "127.0.0.1:8081", cfg.Webhook.Listen)
	assert.Equal(t, DefaultPath, cfg.Webhook.Path)
	assert.Equal(t, DefaultWorkers, cfg.Webhook.Workers)
	assert.Equal(t, []byte("s3cr3t"), cfg.Webhook.SecretBytes)
	assert.Equal(t, int64(DefaultMaxBodySize), cfg.Webhook.MaxBodyBytes)
	assert.True(t, cfg.Ops.Metrics)
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "webhook:\n  secret: s3cr3t\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cr3t"), cfg.Webhook.SecretBytes)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "config.yaml not found")
}

func TestParse_Full(t *testing.T) {
	t.Setenv("HOOKGATE_TEST_SECRET", "from-env")
	t.Setenv("HOOKGATE_TEST_OPS", "ops-token")

	cfg, err := Parse([]byte(`
service:
  name: gate-1
  log_level: debug
  log_format: text
  shutdown_timeout: 5s
webhook:
  listen: 0.0.0.0:9000
  path: /github
  secret_env: HOOKGATE_TEST_SECRET
  max_body_size: 512KB
  workers: 4
  max_pending: 64
  log_events: [issue_comment, push]
ops:
  token: ${HOOKGATE_TEST_OPS}
  metrics: false
  events: true
  event_buffer: 32
`))
	require.NoError(t, err)

	assert.Equal(t, "gate-1", cfg.Service.Name)
	assert.Equal(t, 5*time.Second, cfg.Service.ShutdownTimeout)
	assert.Equal(t, "/github", cfg.Webhook.Path)
	assert.Equal(t, []byte("from-env"), cfg.Webhook.SecretBytes)
	assert.Equal(t, int64(512*1024), cfg.Webhook.MaxBodyBytes)
	assert.Equal(t, 4, cfg.Webhook.Workers)
	assert.Equal(t, 64, cfg.Webhook.MaxPending)
	assert.Equal(t, []string{"issue_comment", "push"}, cfg.Webhook.LogEvents)
	assert.Equal(t, "ops-token", cfg.Ops.Token)
	assert.False(t, cfg.Ops.Metrics)
	assert.Equal(t, 32, cfg.Ops.EventBuffer)
}

func TestParse_SecretEnvWinsOverSecret(t *testing.T) {
	t.Setenv("HOOKGATE_TEST_SECRET", "env-secret")

	cfg, err := Parse([]byte("webhook:\n  secret: inline\n  secret_env: HOOKGATE_TEST_SECRET\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte("env-secret"), cfg.Webhook.SecretBytes)
}

func TestParse_EnvValuesAreNotParsedAsYAML(t *testing.T) {
	secret := "abc #def: ghi\n  path: /hijack"
	t.Setenv("HOOKGATE_TEST_SECRET", secret)
	t.Setenv("HOOKGATE_TEST_OPS", "tok #en")

	cfg, err := Parse([]byte("webhook:\n  secret: ${HOOKGATE_TEST_SECRET}\nops:\n  token: ${HOOKGATE_TEST_OPS}\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte(secret), cfg.Webhook.SecretBytes)
	assert.Equal(t, DefaultPath, cfg.Webhook.Path)
	assert.Equal(t, "tok #en", cfg.Ops.Token)
}

func TestParse_EnvInStringFields(t *testing.T) {
	t.Setenv("HOOKGATE_TEST_PORT", "9443")
	t.Setenv("HOOKGATE_TEST_PATH", "/gh")

	cfg, err := Parse([]byte("webhook:\n  secret: x\n  listen: 127.0.0.1:${HOOKGATE_TEST_PORT}\n  path: ${HOOKGATE_TEST_PATH}\n"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9443", cfg.Webhook.Listen)
	assert.Equal(t, "/gh", cfg.Webhook.Path)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "no secret", yaml: "webhook:\n  path: /x\n", want: "webhook.secret"},
		{name: "unset secret env", yaml: "webhook:\n  secret_env: HOOKGATE_DEFINITELY_UNSET\n", want: "secret_env"},
		{name: "unresolved placeholder", yaml: "webhook:\n  secret: ${HOOKGATE_DEFINITELY_UNSET}\n", want: "not set"},
		{name: "bad log level", yaml: "service:\n  log_level: loud\nwebhook:\n  secret: x\n", want: "log_level"},
		{name: "bad log format", yaml: "service:\n  log_format: xml\nwebhook:\n  secret: x\n", want: "log_format"},
		{name: "relative path", yaml: "webhook:\n  secret: x\n  path: webhook\n", want: "webhook.path"},
		{name: "ops collision", yaml: "webhook:\n  secret: x\n  path: /metrics\n", want: "collides"},
		{name: "bad size", yaml: "webhook:\n  secret: x\n  max_body_size: lots\n", want: "max_body_size"},
		{name: "negative workers", yaml: "webhook:\n  secret: x\n  workers: -1\n", want: "workers"},
		{name: "negative max pending", yaml: "webhook:\n  secret: x\n  max_pending: -1\n", want: "max_pending"},
		{name: "max pending below workers", yaml: "webhook:\n  secret: x\n  workers: 8\n  max_pending: 4\n", want: "max_pending"},
		{name: "empty log event", yaml: "webhook:\n  secret: x\n  log_events: ['']\n", want: "log_events"},
		{name: "invalid yaml", yaml: "webhook: [\n", want: "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: DefaultMaxBodySize},
		{in: "2048", want: 2048},
		{in: "1KB", want: 1024},
		{in: "1mb", want: 1024 * 1024},
		{in: "2GB", want: 2 * 1024 * 1024 * 1024},
		{in: "0", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "MB", wantErr: true},
		{in: "9223372036854775807GB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "webhook:\n  secret: x\n")

	fp, err := Fingerprint(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fp, "blake3:"))
	assert.Len(t, fp, len("blake3:")+64)

	again, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, fp, again)

	writeConfig(t, dir, "webhook:\n  secret: y\n")
	changed, err := Fingerprint(path)
	require.NoError(t, err)
	assert.NotEqual(t, fp, changed)
}

func TestSecretFingerprint(t *testing.T) {
	fp := SecretFingerprint([]byte("s3cr3t"))
	assert.True(t, strings.HasPrefix(fp, "blake3:"))
	assert.NotContains(t, fp, "s3cr3t")
	assert.Len(t, fp, len("blake3:")+12)
	assert.Equal(t, "", SecretFingerprint(nil))
}
