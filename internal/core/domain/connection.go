package domain

import (
	"maps"
	"slices"
	"time"
)

const REDACTED = "**REDACTED**"

// ConnectionConfig holds what an adapter needs to reach one upstream target.
// It is built once at setup and never mutated; WithDevice returns a copy.
type ConnectionConfig struct {
	Host        string
	Port        uint
	UnitId      uint8
	Username    string
	Password    string
	Email       string
	PublicKey   string
	DeviceId    string
	RateLimit   float64
	Connections []string
	Options     map[string]string
	Endpoints   map[string]string
}

func (c ConnectionConfig) WithDevice(deviceId string) ConnectionConfig {
	cp := c.clone()
	cp.DeviceId = deviceId
	return cp
}

func (c ConnectionConfig) Option(key string) string {
	return c.Options[key]
}

func (c ConnectionConfig) HasConnection(name string) bool {
	return slices.Contains(c.Connections, name)
}

// Endpoint returns the configured path override for a resource, or def.
func (c ConnectionConfig) Endpoint(resource ResourceKind, def string) string {
	if p, ok := c.Endpoints[string(resource)]; ok && p != "" {
		return p
	}
	return def
}

// Redacted returns the connection data with host and credentials replaced
// by the redaction marker.
func (c ConnectionConfig) Redacted() map[string]any {
	data := map[string]any{}
	redact := func(key, value string) {
		if value != "" {
			data[key] = REDACTED
		}
	}
	redact("host", c.Host)
	redact("username", c.Username)
	redact("password", c.Password)
	redact("email", c.Email)
	redact("public_key", c.PublicKey)
	redact("device_id", c.DeviceId)
	if c.Port > 0 {
		data["port"] = c.Port
	}
	if c.UnitId > 0 {
		data["unit_id"] = c.UnitId
	}
	if len(c.Connections) > 0 {
		data["connections"] = slices.Clone(c.Connections)
	}
	return data
}

func (c ConnectionConfig) clone() ConnectionConfig {
	cp := c
	cp.Connections = slices.Clone(c.Connections)
	cp.Options = maps.Clone(c.Options)
	cp.Endpoints = maps.Clone(c.Endpoints)
	return cp
}

// IntegrationEntry is one configured integration instance.
type IntegrationEntry struct {
	Name         string
	Title        string
	EntryId      string
	Vendor       string
	ScanInterval time.Duration
	Connection   ConnectionConfig
}
