package service

import (
	"maps"

	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
)

type DiagnosticsEntry struct {
	Title   string            `json:"title"`
	Data    map[string]any    `json:"data"`
	Options map[string]string `json:"options"`
}

// Diagnostics is the redacted export of an integration: its stored connection
// data and the full current snapshot.
type Diagnostics struct {
	Entry DiagnosticsEntry `json:"entry"`
	Data  map[string]any   `json:"data"`
}

// BuildDiagnostics exports the entry and the given snapshots, keyed by
// coordinator name. With a single coordinator the records are inlined.
func BuildDiagnostics(entry domain.IntegrationEntry, snapshots map[string]*domain.Snapshot) Diagnostics {
	options := maps.Clone(entry.Connection.Options)
	if options == nil {
		options = map[string]string{}
	}
	d := Diagnostics{
		Entry: DiagnosticsEntry{
			Title:   entry.Title,
			Data:    entry.Connection.Redacted(),
			Options: options,
		},
		Data: map[string]any{},
	}
	if len(snapshots) == 1 {
		for _, snap := range snapshots {
			d.Data = recordsOf(snap)
		}
		return d
	}
	for name, snap := range snapshots {
		d.Data[name] = recordsOf(snap)
	}
	return d
}

func recordsOf(snap *domain.Snapshot) map[string]any {
	out := map[string]any{}
	if snap == nil {
		return out
	}
	for kind, rec := range snap.Records() {
		out[string(kind)] = rec
	}
	return out
}
