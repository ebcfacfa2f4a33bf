package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/Priya8975/post-relay/internal/store"
	"github.com/Priya8975/post-relay/internal/worker"
)

type harness struct {
	source     *fakeSource
	fetcher    *fakeFetcher
	dispatcher *fakeDispatcher
	probe      *fakeProbe
	disabler   *fakeDisabler
	reporter   *fakeNotifier
	cursor     *store.CursorStore
	mr         *miniredis.Miniredis
	deps       Deps
}

func newHarness(t *testing.T, subs []domain.Subscription, obs map[string]domain.PostObservation) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := &harness{
		source:     &fakeSource{subs: subs},
		fetcher:    &fakeFetcher{obs: obs},
		dispatcher: &fakeDispatcher{},
		probe:      &fakeProbe{},
		disabler:   &fakeDisabler{},
		reporter:   &fakeNotifier{},
		cursor:     store.NewCursorStore(client),
		mr:         mr,
	}
	h.deps = Deps{
		Subscriptions: h.source,
		Credentials:   credPool(2),
		Fetcher:       h.fetcher,
		Cursor:        h.cursor,
		Dispatcher:    h.dispatcher,
		Lifecycle:     NewLifecycle(h.probe, h.disabler, h.dispatcher, nil, testLogger()),
		Reporter:      h.reporter,
		ErrorWebhook:  "https://hooks.example/ops",
	}
	return h
}

func (h *harness) scheduler(interval time.Duration) *Scheduler {
	return NewScheduler(h.deps, interval, testLogger())
}

var p1Time = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestRunCycle_OneFetchPerAccount(t *testing.T) {
	var subs []domain.Subscription
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		subs = append(subs, sub(id, "alice"))
	}
	h := newHarness(t, subs, map[string]domain.PostObservation{
		"alice": fresh("https://x.com/alice/status/1", p1Time),
	})

	if err := h.scheduler(time.Minute).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}

	if n := h.fetcher.count("alice"); n != 1 {
		t.Errorf("alice fetched %d times, want 1", n)
	}
	if n := len(h.dispatcher.jobsFor(domain.DeliveryKindPost)); n != 5 {
		t.Errorf("dispatched %d post jobs, want 5", n)
	}
}

func TestRunCycle_AliceFirstPostThenDedup(t *testing.T) {
	subs := []domain.Subscription{sub("a1", "alice"), sub("a2", "alice"), sub("a3", "alice")}
	h := newHarness(t, subs, map[string]domain.PostObservation{
		"alice": fresh("https://x.com/alice/status/1", p1Time),
	})
	s := h.scheduler(time.Minute)
	ctx := context.Background()

	if err := s.RunCycle(ctx); err != nil {
		t.Fatalf("first cycle error: %v", err)
	}
	jobs := h.dispatcher.jobsFor(domain.DeliveryKindPost)
	if len(jobs) != 3 {
		t.Fatalf("first cycle dispatched %d jobs, want 3", len(jobs))
	}
	for _, j := range jobs {
		if j.Message != "New post from alice\nhttps://x.com/alice/status/1" {
			t.Errorf("message = %q", j.Message)
		}
	}

	cursor, ok, err := h.cursor.Get(ctx, "alice")
	if err != nil || !ok || !cursor.Equal(p1Time) {
		t.Errorf("cursor = %v (ok=%v, err=%v), want %v", cursor, ok, err, p1Time)
	}

	if err := s.RunCycle(ctx); err != nil {
		t.Fatalf("second cycle error: %v", err)
	}
	if n := len(h.dispatcher.jobsFor(domain.DeliveryKindPost)); n != 3 {
		t.Errorf("second cycle re-dispatched: total jobs %d, want 3", n)
	}
}

func TestRunCycle_NewerPostDispatchedAgain(t *testing.T) {
	h := newHarness(t, []domain.Subscription{sub("a1", "alice")}, map[string]domain.PostObservation{
		"alice": fresh("https://x.com/alice/status/1", p1Time),
	})
	s := h.scheduler(time.Minute)
	ctx := context.Background()

	if err := s.RunCycle(ctx); err != nil {
		t.Fatalf("first cycle error: %v", err)
	}
	h.fetcher.obs["alice"] = fresh("https://x.com/alice/status/2", p1Time.Add(time.Minute))
	if err := s.RunCycle(ctx); err != nil {
		t.Fatalf("second cycle error: %v", err)
	}

	jobs := h.dispatcher.jobsFor(domain.DeliveryKindPost)
	if len(jobs) != 2 || jobs[1].PostURL != "https://x.com/alice/status/2" {
		t.Errorf("jobs = %+v, want the second post dispatched", jobs)
	}
}

func TestRunCycle_BobNotFoundDisablesWithNotice(t *testing.T) {
	subs := []domain.Subscription{sub("b1", "bob"), sub("b2", "bob"), sub("a1", "alice")}
	h := newHarness(t, subs, map[string]domain.PostObservation{
		"bob":   permanent(domain.ReasonAccountNotFound),
		"alice": fresh("https://x.com/alice/status/1", p1Time),
	})

	if err := h.scheduler(time.Minute).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}

	notices := h.dispatcher.jobsFor(domain.DeliveryKindError)
	if len(notices) != 2 {
		t.Fatalf("sent %d notices, want 2", len(notices))
	}
	for _, j := range notices {
		if !strings.Contains(j.Message, "could not be found") {
			t.Errorf("notice %q does not mention a missing account", j.Message)
		}
	}
	for _, id := range []string{"b1", "b2"} {
		if _, ok := h.disabler.disabled[id]; !ok {
			t.Errorf("%s was not disabled", id)
		}
	}
	if _, ok := h.disabler.disabled["a1"]; ok {
		t.Error("alice subscription should stay active")
	}
	if n := len(h.dispatcher.jobsFor(domain.DeliveryKindPost)); n != 1 {
		t.Errorf("alice received %d posts, want 1", n)
	}
}

func TestRunCycle_OutageAbortsRestOfCycle(t *testing.T) {
	subs := []domain.Subscription{sub("b1", "bob"), sub("a1", "alice")}
	h := newHarness(t, subs, map[string]domain.PostObservation{
		"bob":   permanent(domain.ReasonAccountNotFound),
		"alice": fresh("https://x.com/alice/status/1", p1Time),
	})
	h.probe.err = errors.New("connection refused")

	err := h.scheduler(time.Minute).RunCycle(context.Background())
	if !errors.Is(err, ErrNetworkOutage) {
		t.Fatalf("error = %v, want ErrNetworkOutage", err)
	}
	if len(h.disabler.disabled) != 0 {
		t.Errorf("disabled %d subscriptions during an outage", len(h.disabler.disabled))
	}
	if len(h.dispatcher.jobs) != 0 {
		t.Errorf("dispatched %d jobs during an outage", len(h.dispatcher.jobs))
	}
	if n := h.fetcher.count("alice"); n != 0 {
		t.Errorf("alice fetched %d times after the outage, want 0", n)
	}
}

func TestRunCycle_TransientSkipsOnlyThatAccount(t *testing.T) {
	subs := []domain.Subscription{sub("b1", "bob"), sub("a1", "alice")}
	h := newHarness(t, subs, map[string]domain.PostObservation{
		"bob":   {Outcome: domain.OutcomeTransientError, Err: errors.New("503")},
		"alice": fresh("https://x.com/alice/status/1", p1Time),
	})

	if err := h.scheduler(time.Minute).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	if len(h.disabler.disabled) != 0 {
		t.Error("transient errors must not disable subscriptions")
	}
	if h.probe.calls != 0 {
		t.Errorf("probe called %d times for a transient error", h.probe.calls)
	}
	if n := len(h.dispatcher.jobsFor(domain.DeliveryKindPost)); n != 1 {
		t.Errorf("alice received %d posts, want 1", n)
	}
}

func TestRunCycle_RotatesCredentials(t *testing.T) {
	subs := []domain.Subscription{sub("1", "alice"), sub("2", "bob"), sub("3", "carol")}
	h := newHarness(t, subs, nil)

	if err := h.scheduler(time.Minute).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}

	want := []fetchCall{{"alice", "scraper0"}, {"bob", "scraper1"}, {"carol", "scraper0"}}
	if len(h.fetcher.calls) != len(want) {
		t.Fatalf("fetch calls = %v, want %v", h.fetcher.calls, want)
	}
	for i := range want {
		if h.fetcher.calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, h.fetcher.calls[i], want[i])
		}
	}
}

func TestRunCycle_BudgetExhaustedSkipsFetch(t *testing.T) {
	subs := []domain.Subscription{sub("1", "alice"), sub("2", "bob")}
	h := newHarness(t, subs, nil)
	h.deps.Budget = fakeBudget{denied: map[string]bool{"scraper0": true}}

	if err := h.scheduler(time.Minute).RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	if n := h.fetcher.count("alice"); n != 0 {
		t.Errorf("alice fetched %d times with an exhausted credential", n)
	}
	if n := h.fetcher.count("bob"); n != 1 {
		t.Errorf("bob fetched %d times, want 1", n)
	}
}

func TestRunCycle_NoCredentials(t *testing.T) {
	h := newHarness(t, []domain.Subscription{sub("1", "alice")}, nil)
	h.deps.Credentials = nil

	if err := h.scheduler(time.Minute).RunCycle(context.Background()); err == nil {
		t.Error("expected an error with subscriptions but no credentials")
	}
}

func TestRunCycle_EmptyIsNoop(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.deps.Credentials = nil

	if err := h.scheduler(time.Minute).RunCycle(context.Background()); err != nil {
		t.Errorf("RunCycle() error: %v", err)
	}
	if len(h.fetcher.calls) != 0 {
		t.Error("nothing should be fetched without subscriptions")
	}
}

func TestRunCycle_SubscriptionStoreErrorAborts(t *testing.T) {
	h := newHarness(t, []domain.Subscription{sub("1", "alice")}, nil)
	h.source.errs = []error{errors.New("connection reset")}

	err := h.scheduler(time.Minute).RunCycle(context.Background())
	if !errors.Is(err, store.ErrStore) {
		t.Errorf("error = %v, want ErrStore", err)
	}
	if len(h.fetcher.calls) != 0 {
		t.Error("no account should be fetched after a store error")
	}
}

func TestRunCycle_CursorStoreErrorAborts(t *testing.T) {
	subs := []domain.Subscription{sub("1", "alice"), sub("2", "bob")}
	h := newHarness(t, subs, map[string]domain.PostObservation{
		"alice": fresh("https://x.com/alice/status/1", p1Time),
		"bob":   fresh("https://x.com/bob/status/1", p1Time),
	})
	h.mr.Close()

	err := h.scheduler(time.Minute).RunCycle(context.Background())
	if !errors.Is(err, store.ErrStore) {
		t.Fatalf("error = %v, want ErrStore", err)
	}
	if len(h.dispatcher.jobs) != 0 {
		t.Errorf("dispatched %d jobs without a cursor decision", len(h.dispatcher.jobs))
	}
	if n := h.fetcher.count("bob"); n != 0 {
		t.Errorf("bob fetched %d times after the store error, want 0", n)
	}
}

func TestRun_SurvivesFailingAndPanickingCycles(t *testing.T) {
	h := newHarness(t, []domain.Subscription{sub("1", "alice")}, nil)
	h.source.errs = []error{errors.New("connection reset")}
	h.source.panic = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		h.scheduler(5 * time.Millisecond).Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	// Four list calls means the third, healthy cycle has finished.
	for h.source.Calls() < 4 {
		select {
		case <-deadline:
			t.Fatalf("only %d cycles ran", h.source.Calls())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if n := h.reporter.count(); n < 2 {
		t.Errorf("reported %d cycle failures, want at least 2", n)
	}
	if n := h.fetcher.count("alice"); n < 1 {
		t.Error("a healthy cycle should have run after the failures")
	}
}

func TestRun_CancelDuringSleep(t *testing.T) {
	h := newHarness(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.scheduler(time.Hour).Run(ctx)
		close(done)
	}()

	for h.source.Calls() < 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop while sleeping")
	}
}

func TestRunCycle_WithDeliveryPool(t *testing.T) {
	var hits atomic.Int32
	srv := newCountingServer(t, &hits)

	subs := []domain.Subscription{sub("a1", "alice"), sub("a2", "alice")}
	for i := range subs {
		subs[i].WebhookURL = srv.URL
	}
	h := newHarness(t, subs, map[string]domain.PostObservation{
		"alice": fresh("https://x.com/alice/status/1", p1Time),
	})
	h.deps.Dispatcher = worker.NewPool(2, worker.NewDeliverer(time.Second, nil, nil, testLogger()), testLogger())

	s := h.scheduler(time.Minute)
	for i := 0; i < 3; i++ {
		if err := s.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d error: %v", i, err)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("webhook hit %d times over three cycles, want 2", n)
	}
}
