// Package types contains shared type definitions used across mongoscope.
package types

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Connection Types
// =============================================================================

// ConnectionConfig describes how to reach a MongoDB server. It is treated as
// immutable once handed to the connection manager.
type ConnectionConfig struct {
	Name            string        `json:"name,omitempty"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Username        string        `json:"username,omitempty"`
	Password        string        `json:"-"`
	AuthSource      string        `json:"authSource,omitempty"`
	DefaultDatabase string        `json:"defaultDatabase,omitempty"`
	TLSEnabled      bool          `json:"tlsEnabled"`
	ConnectTimeout  time.Duration `json:"connectTimeout,omitempty"`
}

// Signature returns the normalized identity of the connection. The password
// never participates, so it is safe as a cache key and in log output.
func (c ConnectionConfig) Signature() string {
	host := strings.ToLower(strings.TrimSpace(c.Host))
	auth := c.AuthSource
	if auth == "" {
		auth = "admin"
	}
	return fmt.Sprintf("%s:%d/%s@%s", host, c.Port, c.Username, auth)
}

// DisplayName returns a human-readable label for the connection.
func (c ConnectionConfig) DisplayName() string {
	if c.Name != "" {
		return fmt.Sprintf("%s (%s:%d)", c.Name, c.Host, c.Port)
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnectionPhase is the lifecycle phase of a logical connection.
type ConnectionPhase string

const (
	PhaseDisconnected ConnectionPhase = "disconnected"
	PhaseConnecting   ConnectionPhase = "connecting"
	PhaseConnected    ConnectionPhase = "connected"
	PhaseFailed       ConnectionPhase = "failed"
)

// ConnectionState is the manager-owned state of one logical connection.
// Reason is set only when Phase is PhaseFailed.
type ConnectionState struct {
	Signature string          `json:"signature"`
	Phase     ConnectionPhase `json:"phase"`
	Reason    string          `json:"reason,omitempty"`
}

// RecentConnection is a password-less connection record kept on disk.
type RecentConnection struct {
	Name            string    `json:"name,omitempty"`
	Host            string    `json:"host"`
	Port            int       `json:"port"`
	Username        string    `json:"username,omitempty"`
	AuthSource      string    `json:"authSource,omitempty"`
	DefaultDatabase string    `json:"defaultDatabase,omitempty"`
	TLSEnabled      bool      `json:"tlsEnabled"`
	LastUsedAt      time.Time `json:"lastUsedAt"`
}

// Config restores a ConnectionConfig from the recent record. The password is
// not stored here; callers resolve it from the keyring.
func (r RecentConnection) Config() ConnectionConfig {
	return ConnectionConfig{
		Name:            r.Name,
		Host:            r.Host,
		Port:            r.Port,
		Username:        r.Username,
		AuthSource:      r.AuthSource,
		DefaultDatabase: r.DefaultDatabase,
		TLSEnabled:      r.TLSEnabled,
	}
}

// =============================================================================
// Query Types
// =============================================================================

// QueryRequest describes one page of documents to fetch. Filter and
// Projection are opaque Extended JSON; the driver codec decides whether they
// parse. A zero Limit means "use the configured default".
type QueryRequest struct {
	View         string `json:"view"`
	Database     string `json:"database"`
	Collection   string `json:"collection"`
	Filter       string `json:"filter,omitempty"`
	Projection   string `json:"projection,omitempty"`
	Limit        int64  `json:"limit"`
	Skip         int64  `json:"skip"`
	WithTotal    bool   `json:"withTotal"`
	WithAnalysis bool   `json:"withAnalysis"`
}

// QueryResult contains one fetched batch. Total is nil unless the request
// asked for a total-matched estimate.
type QueryResult struct {
	Token     uint64                   `json:"token"`
	Documents []map[string]interface{} `json:"documents"`
	Total     *int64                   `json:"total,omitempty"`
	Elapsed   time.Duration            `json:"elapsed"`
}

// FieldStatistic summarizes one field path across a batch. Frequency counts
// documents containing the path; Types partitions exactly those documents by
// value kind; Samples holds at most a handful of distinct display values.
type FieldStatistic struct {
	Path      string         `json:"path"`
	Frequency int            `json:"frequency"`
	Types     map[string]int `json:"types"`
	Samples   []string       `json:"samples,omitempty"`
}

// =============================================================================
// Browsing Types
// =============================================================================

// DatabaseInfo describes a MongoDB database.
type DatabaseInfo struct {
	Name       string `json:"name"`
	SizeOnDisk int64  `json:"sizeOnDisk"`
	Empty      bool   `json:"empty"`
}

// CollectionInfo describes a MongoDB collection.
type CollectionInfo struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Count int64  `json:"count"`
}
