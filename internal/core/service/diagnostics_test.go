package service

import (
	"testing"

	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticsRedactsConnectionData(t *testing.T) {
	entry := domain.IntegrationEntry{
		Name:  "cemm",
		Title: "CEMM",
		Connection: domain.ConnectionConfig{
			Host:     "192.168.1.10",
			Username: "user",
			Password: "secret",
			Options:  map[string]string{"use_json": "true"},
		},
	}
	d := BuildDiagnostics(entry, map[string]*domain.Snapshot{"cemm": snapshotOf(1, 42)})

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "192.168.1.10")
	assert.NotContains(t, string(raw), "secret")

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	entryData := decoded["entry"]["data"].(map[string]any)
	assert.Equal(t, domain.REDACTED, entryData["host"])
	assert.Equal(t, domain.REDACTED, entryData["password"])
	assert.Equal(t, "CEMM", decoded["entry"]["title"])
	assert.Equal(t, map[string]any{"use_json": "true"}, decoded["entry"]["options"])

	data := decoded["data"]
	assert.Equal(t, map[string]any{"firmware": "1.6.16"}, data["device"])
	assert.Equal(t, map[string]any{"power": float64(42)}, data["meter"])
}

func TestDiagnosticsFanOutKeyedByCoordinator(t *testing.T) {
	entry := domain.IntegrationEntry{Name: "pf", Title: "Powerfox"}
	d := BuildDiagnostics(entry, map[string]*domain.Snapshot{
		"pf_a": snapshotOf(1, 1),
		"pf_b": nil,
	})
	require.Contains(t, d.Data, "pf_a")
	require.Contains(t, d.Data, "pf_b")
	assert.Empty(t, d.Data["pf_b"])
	assert.NotNil(t, d.Entry.Options)
}
