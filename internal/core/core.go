// Package core provides the shared contracts between the connection and
// query layers and the presentation shell: timeouts, typed errors, and the
// ResultChannel through which all results and state changes are pushed.
package core

import (
	"context"
	"time"

	"github.com/rjnmav/mongoscope/internal/types"
)

// DefaultQueryTimeout is the default timeout for database queries.
const DefaultQueryTimeout = 30 * time.Second

// DefaultConnectTimeout is the default timeout for connection attempts.
const DefaultConnectTimeout = 10 * time.Second

// DefaultHealthCheckTimeout bounds the liveness ping before a cached
// connection is reused.
const DefaultHealthCheckTimeout = 2 * time.Second

// ContextWithTimeout creates a context with the default query timeout.
func ContextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DefaultQueryTimeout)
}

// ContextWithConnectTimeout creates a context with the default connect timeout.
func ContextWithConnectTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DefaultConnectTimeout)
}

// ResultChannel is the narrow boundary to the presentation layer. The core
// pushes notifications through it and never reads anything back. For a given
// token each kind of notification is delivered at most once.
type ResultChannel interface {
	ConnectionStateChanged(state types.ConnectionState)
	QueryCompleted(token uint64, result *types.QueryResult)
	QueryFailed(token uint64, err error)
	StatisticsReady(token uint64, stats map[string]types.FieldStatistic)
}

// NoopChannel discards every notification. Used by tests and as a safe
// default when no consumer is attached.
type NoopChannel struct{}

func (NoopChannel) ConnectionStateChanged(types.ConnectionState)            {}
func (NoopChannel) QueryCompleted(uint64, *types.QueryResult)               {}
func (NoopChannel) QueryFailed(uint64, error)                               {}
func (NoopChannel) StatisticsReady(uint64, map[string]types.FieldStatistic) {}

// CallbackChannel forwards notifications to optional callbacks. Nil callbacks
// are skipped, so consumers subscribe only to what they render.
type CallbackChannel struct {
	OnConnectionState func(state types.ConnectionState)
	OnQueryCompleted  func(token uint64, result *types.QueryResult)
	OnQueryFailed     func(token uint64, err error)
	OnStatistics      func(token uint64, stats map[string]types.FieldStatistic)
}

func (c *CallbackChannel) ConnectionStateChanged(state types.ConnectionState) {
	if c.OnConnectionState != nil {
		c.OnConnectionState(state)
	}
}

func (c *CallbackChannel) QueryCompleted(token uint64, result *types.QueryResult) {
	if c.OnQueryCompleted != nil {
		c.OnQueryCompleted(token, result)
	}
}

func (c *CallbackChannel) QueryFailed(token uint64, err error) {
	if c.OnQueryFailed != nil {
		c.OnQueryFailed(token, err)
	}
}

func (c *CallbackChannel) StatisticsReady(token uint64, stats map[string]types.FieldStatistic) {
	if c.OnStatistics != nil {
		c.OnStatistics(token, stats)
	}
}
