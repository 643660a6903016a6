package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/rjnmav/mongoscope/internal/connection"
	"github.com/rjnmav/mongoscope/internal/core"
	"github.com/rjnmav/mongoscope/internal/types"
)

// outcome is one delivery observed on the channel.
type outcome struct {
	token  uint64
	result *types.QueryResult
	err    error
	stats  map[string]types.FieldStatistic
}

// outcomeRecorder collects deliveries and signals each one.
type outcomeRecorder struct {
	core.NoopChannel
	mu        sync.Mutex
	outcomes  []outcome
	delivered chan struct{}
}

func newOutcomeRecorder() *outcomeRecorder {
	return &outcomeRecorder{delivered: make(chan struct{}, 64)}
}

func (r *outcomeRecorder) QueryCompleted(token uint64, result *types.QueryResult) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome{token: token, result: result})
	r.mu.Unlock()
	r.delivered <- struct{}{}
}

func (r *outcomeRecorder) QueryFailed(token uint64, err error) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome{token: token, err: err})
	r.mu.Unlock()
	r.delivered <- struct{}{}
}

func (r *outcomeRecorder) StatisticsReady(token uint64, stats map[string]types.FieldStatistic) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome{token: token, stats: stats})
	r.mu.Unlock()
	r.delivered <- struct{}{}
}

func (r *outcomeRecorder) wait(t *testing.T, n int) []outcome {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-r.delivered:
		case <-deadline:
			t.Fatalf("timed out waiting for delivery %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// settle gives stray goroutines a chance to (incorrectly) deliver.
func (r *outcomeRecorder) settle() []outcome {
	time.Sleep(50 * time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

func newTestHandle(t *testing.T, mgr *connection.Manager) *connection.Handle {
	t.Helper()
	h, err := mgr.Connect(types.ConnectionConfig{Host: "localhost", Port: 27017})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return h
}

func newTestManager() *connection.Manager {
	return connection.NewManager(core.NoopChannel{}, connection.Options{
		Dial: func(ctx context.Context, uri string, maxPool uint64) (*mongo.Client, error) {
			return nil, nil
		},
		Ping: func(ctx context.Context, client *mongo.Client) error {
			return nil
		},
	})
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestSubmitRejectsInvalidParameters(t *testing.T) {
	mgr := newTestManager()
	rec := newOutcomeRecorder()
	d := NewDispatcher(mgr, rec, Options{})
	h := newTestHandle(t, mgr)

	tests := []struct {
		name string
		req  types.QueryRequest
	}{
		{"negative limit", types.QueryRequest{View: "main", Limit: -1}},
		{"limit above maximum", types.QueryRequest{View: "main", Limit: 1001}},
		{"negative skip", types.QueryRequest{View: "main", Skip: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := d.Submit(h, tt.req)
			if tok != 0 {
				t.Errorf("invalid request consumed token %d", tok)
			}
			var qerr *core.QueryError
			if !errors.As(err, &qerr) {
				t.Fatalf("error type %T", err)
			}
			if qerr.Kind != core.QueryInvalidParameters {
				t.Errorf("kind = %q, want invalid_parameters", qerr.Kind)
			}
		})
	}

	// Validation failures deliver nothing asynchronously.
	if got := rec.settle(); len(got) != 0 {
		t.Errorf("validation failure produced %d deliveries", len(got))
	}
}

func TestSubmitAppliesDefaultLimit(t *testing.T) {
	mgr := newTestManager()
	rec := newOutcomeRecorder()
	d := NewDispatcher(mgr, rec, Options{DefaultLimit: 25})
	h := newTestHandle(t, mgr)

	var gotLimit int64
	d.exec = func(ctx context.Context, h *connection.Handle, req types.QueryRequest) (*types.QueryResult, error) {
		gotLimit = req.Limit
		return &types.QueryResult{}, nil
	}

	if _, err := d.Submit(h, types.QueryRequest{View: "main"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	rec.wait(t, 1)

	if gotLimit != 25 {
		t.Errorf("limit = %d, want 25", gotLimit)
	}
}

func TestSubmitWithoutConnection(t *testing.T) {
	mgr := newTestManager()
	d := NewDispatcher(mgr, newOutcomeRecorder(), Options{})

	_, err := d.Submit(nil, types.QueryRequest{View: "main"})
	var qerr *core.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("error type %T", err)
	}
	if qerr.Kind != core.QueryConnectionLost {
		t.Errorf("kind = %q, want connection_lost", qerr.Kind)
	}
}

// =============================================================================
// Staleness Tests
// =============================================================================

func TestOnlyNewestResultPerViewIsDelivered(t *testing.T) {
	mgr := newTestManager()
	rec := newOutcomeRecorder()
	d := NewDispatcher(mgr, rec, Options{})
	h := newTestHandle(t, mgr)

	release := make(chan struct{})
	d.exec = func(ctx context.Context, h *connection.Handle, req types.QueryRequest) (*types.QueryResult, error) {
		if req.Filter == "slow" {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return &types.QueryResult{Documents: []map[string]interface{}{{"filter": req.Filter}}}, nil
	}

	tokA, err := d.Submit(h, types.QueryRequest{View: "main", Filter: "slow"})
	if err != nil {
		t.Fatalf("submit A: %v", err)
	}
	tokB, err := d.Submit(h, types.QueryRequest{View: "main", Filter: "fast"})
	if err != nil {
		t.Fatalf("submit B: %v", err)
	}
	if tokB <= tokA {
		t.Fatalf("tokens not monotonic: %d then %d", tokA, tokB)
	}

	rec.wait(t, 1)
	close(release)

	outcomes := rec.settle()
	if len(outcomes) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(outcomes))
	}
	if outcomes[0].token != tokB {
		t.Errorf("delivered token %d, want %d", outcomes[0].token, tokB)
	}
	if outcomes[0].result.Documents[0]["filter"] != "fast" {
		t.Errorf("delivered the superseded result")
	}
}

func TestIndependentViewsDoNotSupersedeEachOther(t *testing.T) {
	mgr := newTestManager()
	rec := newOutcomeRecorder()
	d := NewDispatcher(mgr, rec, Options{})
	h := newTestHandle(t, mgr)

	d.exec = func(ctx context.Context, h *connection.Handle, req types.QueryRequest) (*types.QueryResult, error) {
		return &types.QueryResult{}, nil
	}

	tokA, _ := d.Submit(h, types.QueryRequest{View: "left"})
	tokB, _ := d.Submit(h, types.QueryRequest{View: "right"})

	outcomes := rec.wait(t, 2)
	seen := map[uint64]bool{}
	for _, o := range outcomes {
		seen[o.token] = true
	}
	if !seen[tokA] || !seen[tokB] {
		t.Errorf("expected both %d and %d delivered, got %v", tokA, tokB, outcomes)
	}
}

func TestCancelSuppressesDelivery(t *testing.T) {
	mgr := newTestManager()
	rec := newOutcomeRecorder()
	d := NewDispatcher(mgr, rec, Options{})
	h := newTestHandle(t, mgr)

	started := make(chan struct{})
	d.exec = func(ctx context.Context, h *connection.Handle, req types.QueryRequest) (*types.QueryResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	tok, err := d.Submit(h, types.QueryRequest{View: "main"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started
	d.Cancel(tok)

	if got := rec.settle(); len(got) != 0 {
		t.Errorf("cancelled query delivered %d outcomes", len(got))
	}
}

// =============================================================================
// Failure Delivery Tests
// =============================================================================

func TestExecutionFailureIsDeliveredTyped(t *testing.T) {
	mgr := newTestManager()
	rec := newOutcomeRecorder()
	d := NewDispatcher(mgr, rec, Options{})
	h := newTestHandle(t, mgr)

	d.exec = func(ctx context.Context, h *connection.Handle, req types.QueryRequest) (*types.QueryResult, error) {
		return nil, core.NewQueryError(core.QueryInvalidFilterSyntax, "unexpected EOF", nil)
	}

	tok, err := d.Submit(h, types.QueryRequest{View: "main"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	outcomes := rec.wait(t, 1)
	if outcomes[0].token != tok {
		t.Errorf("token = %d, want %d", outcomes[0].token, tok)
	}
	var qerr *core.QueryError
	if !errors.As(outcomes[0].err, &qerr) {
		t.Fatalf("error type %T", outcomes[0].err)
	}
	if qerr.Kind != core.QueryInvalidFilterSyntax {
		t.Errorf("kind = %q, want invalid_filter_syntax", qerr.Kind)
	}
}

func TestConnectionLostMarksManagerState(t *testing.T) {
	mgr := newTestManager()
	rec := newOutcomeRecorder()
	d := NewDispatcher(mgr, rec, Options{})
	h := newTestHandle(t, mgr)

	d.exec = func(ctx context.Context, h *connection.Handle, req types.QueryRequest) (*types.QueryResult, error) {
		return nil, errors.New("socket was unexpectedly closed")
	}

	if _, err := d.Submit(h, types.QueryRequest{View: "main"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	outcomes := rec.wait(t, 1)

	var qerr *core.QueryError
	if !errors.As(outcomes[0].err, &qerr) {
		t.Fatalf("error type %T", outcomes[0].err)
	}
	if qerr.Kind != core.QueryConnectionLost {
		t.Errorf("kind = %q, want connection_lost", qerr.Kind)
	}

	if state := mgr.State(h.Signature()); state.Phase != types.PhaseFailed {
		t.Errorf("manager state = %q, want failed", state.Phase)
	}
	if mgr.Handle(h.Signature()) != nil {
		t.Error("lost handle still cached")
	}
}

// =============================================================================
// Statistics Delivery Tests
// =============================================================================

func TestAnalysisFollowsCompletedQuery(t *testing.T) {
	mgr := newTestManager()
	rec := newOutcomeRecorder()
	d := NewDispatcher(mgr, rec, Options{})
	h := newTestHandle(t, mgr)

	d.exec = func(ctx context.Context, h *connection.Handle, req types.QueryRequest) (*types.QueryResult, error) {
		return &types.QueryResult{Documents: []map[string]interface{}{
			{"name": "a", "age": int32(30)},
			{"name": "b"},
		}}, nil
	}

	tok, err := d.Submit(h, types.QueryRequest{View: "main", WithAnalysis: true})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	outcomes := rec.wait(t, 2)
	if outcomes[0].result == nil {
		t.Fatal("first delivery is not the query result")
	}
	if outcomes[1].stats == nil {
		t.Fatal("second delivery is not the statistics")
	}
	if outcomes[1].token != tok {
		t.Errorf("statistics token = %d, want %d", outcomes[1].token, tok)
	}
	if outcomes[1].stats["name"].Frequency != 2 {
		t.Errorf("name frequency = %d, want 2", outcomes[1].stats["name"].Frequency)
	}
	if outcomes[1].stats["age"].Frequency != 1 {
		t.Errorf("age frequency = %d, want 1", outcomes[1].stats["age"].Frequency)
	}
}

// =============================================================================
// Error Classification Tests
// =============================================================================

func TestClassifyQueryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.QueryErrorKind
	}{
		{"unauthorized", mongo.CommandError{Code: 13, Message: "not authorized"}, core.QueryPermissionDenied},
		{"auth failed", mongo.CommandError{Code: 18, Message: "authentication failed"}, core.QueryPermissionDenied},
		{"max time expired", mongo.CommandError{Code: 50, Message: "operation exceeded time limit"}, core.QueryExecutionTimeout},
		{"bad operator", mongo.CommandError{Code: 2, Message: "unknown operator $foo"}, core.QueryInvalidFilterSyntax},
		{"deadline", context.DeadlineExceeded, core.QueryExecutionTimeout},
		{"transport", errors.New("connection reset"), core.QueryConnectionLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyQueryError(tt.err); got.Kind != tt.want {
				t.Errorf("kind = %q, want %q", got.Kind, tt.want)
			}
		})
	}
}
