// Package query dispatches queries to background workers and guarantees that
// only the freshest result for a given view is ever surfaced.
package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/semaphore"

	"github.com/rjnmav/mongoscope/internal/connection"
	"github.com/rjnmav/mongoscope/internal/core"
	"github.com/rjnmav/mongoscope/internal/stats"
	"github.com/rjnmav/mongoscope/internal/types"
)

type execFunc func(ctx context.Context, h *connection.Handle, req types.QueryRequest) (*types.QueryResult, error)

// Options configures a Dispatcher.
type Options struct {
	Workers      int64
	QueryTimeout time.Duration
	DefaultLimit int64
	MaxLimit     int64
	Logger       zerolog.Logger
}

type pending struct {
	view   string
	cancel context.CancelFunc
}

// Dispatcher runs queries asynchronously on a bounded worker pool. Tokens
// increase monotonically across all submissions; per view, only the result
// carrying the highest submitted token is delivered.
type Dispatcher struct {
	mgr     *connection.Manager
	channel core.ResultChannel
	log     zerolog.Logger

	sem          *semaphore.Weighted
	queryTimeout time.Duration
	defaultLimit int64
	maxLimit     int64

	token atomic.Uint64

	mu       sync.Mutex
	latest   map[string]uint64  // view -> highest token submitted
	inflight map[uint64]pending // token -> cancellation

	// Overridable in tests to avoid a live server.
	exec execFunc
}

// NewDispatcher creates a dispatcher executing queries against handles owned
// by mgr, delivering outcomes through channel.
func NewDispatcher(mgr *connection.Manager, channel core.ResultChannel, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = core.DefaultQueryTimeout
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 1000
	}
	return &Dispatcher{
		mgr:          mgr,
		channel:      channel,
		log:          opts.Logger,
		sem:          semaphore.NewWeighted(opts.Workers),
		queryTimeout: opts.QueryTimeout,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		latest:       make(map[string]uint64),
		inflight:     make(map[uint64]pending),
		exec:         mongoExec,
	}
}

// Submit validates the request, assigns a token, and enqueues execution.
// Invalid parameters are rejected synchronously without consuming a token or
// touching the connection. Submitting for a view supersedes every earlier
// request for that view; superseded work is cancelled best-effort and its
// result dropped.
func (d *Dispatcher) Submit(h *connection.Handle, req types.QueryRequest) (uint64, error) {
	if req.Limit == 0 {
		req.Limit = d.defaultLimit
	}
	if req.Limit < 1 || req.Limit > d.maxLimit {
		return 0, core.NewQueryError(core.QueryInvalidParameters, "limit outside [1, 1000]", nil)
	}
	if req.Skip < 0 {
		return 0, core.NewQueryError(core.QueryInvalidParameters, "skip cannot be negative", nil)
	}
	if h == nil {
		return 0, core.NewQueryError(core.QueryConnectionLost, "not connected", nil)
	}

	tok := d.token.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), d.queryTimeout)

	d.mu.Lock()
	prev, hadPrev := d.latest[req.View]
	d.latest[req.View] = tok
	d.inflight[tok] = pending{view: req.View, cancel: cancel}
	var prevCancel context.CancelFunc
	if hadPrev {
		if p, ok := d.inflight[prev]; ok {
			prevCancel = p.cancel
		}
	}
	d.mu.Unlock()

	// Free the worker serving the superseded request; its result would be
	// dropped anyway.
	if prevCancel != nil {
		prevCancel()
	}

	go d.run(ctx, cancel, h, req, tok)
	return tok, nil
}

// Cancel withdraws interest in a token. If it is still the authoritative
// request for its view, nothing will be delivered for it. The in-flight
// driver call is aborted best-effort via its context.
func (d *Dispatcher) Cancel(tok uint64) {
	d.mu.Lock()
	p, ok := d.inflight[tok]
	if ok && d.latest[p.view] == tok {
		delete(d.latest, p.view)
	}
	d.mu.Unlock()

	if ok {
		p.cancel()
	}
}

func (d *Dispatcher) run(ctx context.Context, cancel context.CancelFunc, h *connection.Handle, req types.QueryRequest, tok uint64) {
	defer cancel()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.deliver(h, req, tok, nil, classifyQueryError(err))
		return
	}
	defer d.sem.Release(1)

	res, err := d.exec(ctx, h, req)
	if err != nil {
		d.deliver(h, req, tok, nil, classifyQueryError(err))
		return
	}
	res.Token = tok
	d.deliver(h, req, tok, res, nil)
}

// deliver surfaces an outcome through the channel unless a newer token has
// been submitted for the same view in the meantime.
func (d *Dispatcher) deliver(h *connection.Handle, req types.QueryRequest, tok uint64, res *types.QueryResult, qerr *core.QueryError) {
	d.mu.Lock()
	current, ok := d.latest[req.View]
	delete(d.inflight, tok)
	d.mu.Unlock()

	if !ok || current != tok {
		d.log.Debug().
			Uint64("token", tok).
			Str("view", req.View).
			Msg("dropping superseded result")
		return
	}

	if qerr != nil {
		if qerr.Kind == core.QueryConnectionLost {
			d.mgr.MarkLost(h, qerr.Reason)
		}
		d.channel.QueryFailed(tok, qerr)
		return
	}

	d.channel.QueryCompleted(tok, res)
	if req.WithAnalysis {
		d.channel.StatisticsReady(tok, stats.Analyze(res.Documents))
	}
}

// classifyQueryError maps an execution error onto the query error taxonomy.
// Command errors came from the server over a working connection; everything
// else is transport-level.
func classifyQueryError(err error) *core.QueryError {
	var qerr *core.QueryError
	if errors.As(err, &qerr) {
		return qerr
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 13, 18: // Unauthorized, AuthenticationFailed
			return core.NewQueryError(core.QueryPermissionDenied, cmdErr.Message, err)
		case 50: // MaxTimeMSExpired
			return core.NewQueryError(core.QueryExecutionTimeout, cmdErr.Message, err)
		default:
			return core.NewQueryError(core.QueryInvalidFilterSyntax, cmdErr.Message, err)
		}
	}

	if mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return core.NewQueryError(core.QueryExecutionTimeout, err.Error(), err)
	}
	return core.NewQueryError(core.QueryConnectionLost, err.Error(), err)
}
