package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teh-hippo/tiny-ntfy-mcp/internal/config"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/eventbus"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/gate"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/ntfy"
	"github.com/teh-hippo/tiny-ntfy-mcp/internal/sequence"
	logx "github.com/teh-hippo/tiny-ntfy-mcp/pkg/logx"
)

type delivered struct {
	path   string
	header http.Header
}

type testEnv struct {
	disp *Service
	reg  *sequence.Registry
	gate *gate.Gate
	reqs chan delivered
}

// newTestEnv builds a started pipeline pointed at a capturing relay.
// The gate starts enabled; tests flip it as needed.
func newTestEnv(t *testing.T, cfg Config, snapMut func(*config.Snapshot)) *testEnv {
	t.Helper()

	reqs := make(chan delivered, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs <- delivered{path: r.URL.Path, header: r.Header.Clone()}
	}))
	t.Cleanup(srv.Close)

	snap := &config.Snapshot{URL: srv.URL, Topic: "builds", Timeout: 2 * time.Second}
	if snapMut != nil {
		snapMut(snap)
	}

	g := gate.New(nil)
	g.SetEnabled(true)
	reg := sequence.NewRegistry("")
	disp := New(cfg, g, reg, ntfy.NewClient(snap, logx.Nop()), eventbus.New(), logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	disp.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
		disp.Stop(stopCtx)
		stopCancel()
	})

	return &testEnv{disp: disp, reg: reg, gate: g, reqs: reqs}
}

func (e *testEnv) waitDelivery(t *testing.T) delivered {
	t.Helper()
	select {
	case d := <-e.reqs:
		return d
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for background delivery")
		return delivered{}
	}
}

func TestPublishUpdateInPlace(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, Config{}, nil)

	ack1, err := e.disp.Publish(map[string]any{"session": "build", "status": "progress", "result": "Running tests"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !ack1.Enqueued || ack1.SequenceID == "" || ack1.MessageID == "" {
		t.Fatalf("bad ack: %+v", ack1)
	}

	d1 := e.waitDelivery(t)
	if d1.path != "/builds" {
		t.Fatalf("path = %q", d1.path)
	}
	if got := d1.header.Get("X-Sequence-Id"); got != ack1.SequenceID {
		t.Fatalf("delivery sequence header = %q, want %q", got, ack1.SequenceID)
	}

	// Follow-up edits the same notification: same token, no new mint.
	ack2, err := e.disp.Publish(map[string]any{"session": "build", "status": "success", "result": "All tests passed"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ack2.SequenceID != ack1.SequenceID {
		t.Fatalf("follow-up token = %q, want %q", ack2.SequenceID, ack1.SequenceID)
	}
	if ack2.MessageID == ack1.MessageID {
		t.Fatal("message ids must be distinct per publish")
	}
	d2 := e.waitDelivery(t)
	if got := d2.header.Get("X-Sequence-Id"); got != ack1.SequenceID {
		t.Fatalf("second delivery sequence header = %q", got)
	}
}

func TestPublishNoUpdate(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, Config{}, nil)

	prior, _ := e.reg.RecordOrGenerate("build", "", true)

	ack, err := e.disp.Publish(map[string]any{"session": "build", "result": "x", "update": false})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ack.SequenceID != "" {
		t.Fatalf("ack token = %q, want none", ack.SequenceID)
	}
	d := e.waitDelivery(t)
	if got := d.header.Get("X-Sequence-Id"); got != "" {
		t.Fatalf("sequence header sent on update=false: %q", got)
	}
	if got, _ := e.reg.TokenFor("build"); got != prior {
		t.Fatalf("stored token mutated: %q", got)
	}
}

func TestPublishSuppressedByGate(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, Config{}, nil)
	e.gate.SetEnabled(false)

	ack, err := e.disp.Publish(map[string]any{"session": "build", "result": "x"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !ack.Suppressed || ack.Reason != "disabled" || ack.Enqueued {
		t.Fatalf("bad suppressed ack: %+v", ack)
	}
	if e.reg.Len() != 0 {
		t.Fatal("suppressed publish mutated the registry")
	}

	// Re-enable and publish once; only that delivery may arrive.
	e.gate.SetEnabled(true)
	if _, err := e.disp.Publish(map[string]any{"session": "build", "result": "y"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	e.waitDelivery(t)
	select {
	case d := <-e.reqs:
		t.Fatalf("unexpected extra delivery: %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishInvalidNoSideEffects(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, Config{}, nil)

	_, err := e.disp.Publish(map[string]any{"session": "build", "status": "done"})
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("err = %v, want ErrInvalidParams", err)
	}
	if e.reg.Len() != 0 {
		t.Fatal("invalid publish mutated the registry")
	}
	select {
	case d := <-e.reqs:
		t.Fatalf("invalid publish scheduled a delivery: %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishCallerTokenWins(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, Config{}, nil)
	e.reg.RecordOrGenerate("build", "", true)

	ack, err := e.disp.Publish(map[string]any{"session": "build", "sequenceId": "mine"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ack.SequenceID != "mine" {
		t.Fatalf("ack token = %q, want mine", ack.SequenceID)
	}
	if got, _ := e.reg.TokenFor("build"); got != "mine" {
		t.Fatalf("stored token = %q, want mine", got)
	}
	d := e.waitDelivery(t)
	if got := d.header.Get("X-Sequence-Id"); got != "mine" {
		t.Fatalf("delivery header = %q, want mine", got)
	}
}

func TestPublishTopicOverride(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, Config{}, nil)

	if _, err := e.disp.Publish(map[string]any{"session": "build", "topic": "other"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if d := e.waitDelivery(t); d.path != "/other" {
		t.Fatalf("path = %q, want /other", d.path)
	}
}

func TestPublishConcurrentSameSession(t *testing.T) {
	t.Parallel()
	// Dry-run keeps the relay out of it; this only exercises token minting.
	e := newTestEnv(t, Config{RatePerSec: 1000}, func(s *config.Snapshot) { s.DryRun = true })

	const n = 32
	acks := make([]Ack, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acks[i], errs[i] = e.disp.Publish(map[string]any{"session": "race"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("publish %d: %v", i, errs[i])
		}
		if acks[i].SequenceID != acks[0].SequenceID {
			t.Fatalf("token mismatch: %q vs %q", acks[i].SequenceID, acks[0].SequenceID)
		}
	}
	if e.reg.Len() != 1 {
		t.Fatalf("registry has %d entries, want 1", e.reg.Len())
	}
}

func TestPublishQueueFull(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	snap := &config.Snapshot{URL: srv.URL, Topic: "builds", Timeout: 10 * time.Second}
	g := gate.New(nil)
	g.SetEnabled(true)
	reg := sequence.NewRegistry("")
	disp := New(Config{Workers: 1, QueueSize: 1, RatePerSec: 1000}, g, reg, ntfy.NewClient(snap, logx.Nop()), eventbus.New(), logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	disp.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		disp.Stop(stopCtx)
		stopCancel()
	})

	// First job occupies the single worker (blocked in the relay call).
	if _, err := disp.Publish(map[string]any{"session": "a"}); err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("worker never reached the relay")
	}

	// Second fills the queue; third must be rejected immediately.
	if _, err := disp.Publish(map[string]any{"session": "b"}); err != nil {
		t.Fatalf("publish 2: %v", err)
	}
	if _, err := disp.Publish(map[string]any{"session": "c"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("publish 3 err = %v, want ErrQueueFull", err)
	}

	st := disp.Stats()
	if st.Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", st.Dropped)
	}
}

func TestStatsAfterDrain(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, Config{}, nil)

	if _, err := e.disp.Publish(map[string]any{"session": "build"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	e.waitDelivery(t)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	e.disp.Stop(stopCtx)
	stopCancel()

	st := e.disp.Stats()
	if st.SentOK != 1 || st.SentErr != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if st.LastSuccessAt.IsZero() {
		t.Fatal("LastSuccessAt not set")
	}

	// Once stopped, publishes are refused.
	if _, err := e.disp.Publish(map[string]any{"session": "build"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestDeliveryFailureInvisibleToCaller(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	snap := &config.Snapshot{URL: srv.URL, Topic: "builds", Timeout: 2 * time.Second}
	g := gate.New(nil)
	g.SetEnabled(true)
	disp := New(Config{}, g, sequence.NewRegistry(""), ntfy.NewClient(snap, logx.Nop()), eventbus.New(), logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	disp.Start(ctx)

	ack, err := disp.Publish(map[string]any{"session": "build"})
	if err != nil || !ack.Enqueued {
		t.Fatalf("caller saw a delivery problem: ack=%+v err=%v", ack, err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	disp.Stop(stopCtx)
	stopCancel()

	st := disp.Stats()
	if st.SentErr != 1 {
		t.Fatalf("SentErr = %d, want 1", st.SentErr)
	}
	if st.LastError == "" {
		t.Fatal("LastError not recorded")
	}
}
