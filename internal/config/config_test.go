package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RENTVIEW_TEST_TOKEN", "123:abc")
	t.Setenv("RENTVIEW_TEST_DB", filepath.Join(dir, "db", "rentview.db"))

	t.Setenv("RENTVIEW_TEST_API_KEY", "inbound")

	path := writeConfig(t, `
server:
  api_key: ${RENTVIEW_TEST_API_KEY}
appointments:
  api_key: outbound
database:
  path: ${RENTVIEW_TEST_DB}
wizard:
  week_start: sunday
notify:
  telegram:
    enabled: true
    bot_token: ${RENTVIEW_TEST_TOKEN}
    chats:
      owner-1: 42
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Notify.Telegram.BotToken)
	assert.Equal(t, int64(42), cfg.Notify.Telegram.Chats["owner-1"])
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "inbound", cfg.Server.APIKey)
	assert.Equal(t, "outbound", cfg.Appointments.APIKey)
	assert.Equal(t, time.Sunday, cfg.WeekStart())
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL())
	assert.Equal(t, 10*time.Second, cfg.AppointmentsTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval())
	assert.Equal(t, float64(20), cfg.Notify.Telegram.RatePerSecond)
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		body string
	}{
		{"week start", "wizard:\n  week_start: friday\n"},
		{"timezone", "server:\n  timezone: Mars/Olympus\n"},
		{"telegram token", "notify:\n  telegram:\n    enabled: true\n"},
		{"sheets", "sheets:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := "database:\n  path: " + filepath.Join(dir, "x.db") + "\n" + tt.body
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
