package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitWritesAuditToSeparateFile(t *testing.T) {
	dir := t.TempDir()
	appPath := filepath.Join(dir, "app.log")
	auditPath := filepath.Join(dir, "audit", "audit.log")

	require.NoError(t, Init(Config{
		Level:       "debug",
		OutputPaths: []string{appPath},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	}))
	t.Cleanup(func() {
		_ = Sync()
		_ = Init(Config{OutputPaths: []string{"discard"}})
	})

	Named("ledger").Debug("append", "tx_hash", "0xabc")
	Audit().Info("intent settled", "intent_id", "i-1")
	require.NoError(t, Sync())

	appContent, err := os.ReadFile(appPath)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(appContent))), &entry))
	require.Equal(t, "ledger", entry["component"])
	require.Equal(t, "0xabc", entry["tx_hash"])

	auditContent, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	require.Contains(t, string(auditContent), "intent settled")
	require.NotContains(t, string(appContent), "intent settled")
}

func TestInitRejectsAuditWithoutPath(t *testing.T) {
	require.Error(t, Init(Config{Audit: AuditConfig{Enabled: true}}))
}
