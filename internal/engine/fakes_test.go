package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/Priya8975/post-relay/internal/worker"
)

// journal records side effects across fakes so tests can check ordering.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

type fakeSource struct {
	mu    sync.Mutex
	subs  []domain.Subscription
	errs  []error
	panic bool
	calls int
}

func (f *fakeSource) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panic && f.calls == 2 {
		panic("boom")
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.subs, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fetchCall struct {
	handle string
	cred   string
}

type fakeFetcher struct {
	mu    sync.Mutex
	obs   map[string]domain.PostObservation
	calls []fetchCall
}

func (f *fakeFetcher) Fetch(ctx context.Context, handle string, cred domain.Credential) domain.PostObservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{handle: handle, cred: cred.Username})
	if o, ok := f.obs[handle]; ok {
		o.Handle = handle
		return o
	}
	return domain.PostObservation{Handle: handle, Outcome: domain.OutcomeNoNewPost}
}

func (f *fakeFetcher) count(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.handle == handle {
			n++
		}
	}
	return n
}

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []worker.Job
	fail map[string]bool
	log  *journal
}

func (f *fakeDispatcher) Run(ctx context.Context, jobs []worker.Job) []worker.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make([]worker.Result, len(jobs))
	for i, j := range jobs {
		f.jobs = append(f.jobs, j)
		f.log.add("notify:" + j.SubscriptionID)
		results[i] = worker.Result{Job: j, OK: !f.fail[j.SubscriptionID]}
	}
	return results
}

func (f *fakeDispatcher) jobsFor(kind string) []worker.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []worker.Job
	for _, j := range f.jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

type fakeProbe struct {
	err   error
	calls int
}

func (f *fakeProbe) Check(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeDisabler struct {
	mu       sync.Mutex
	disabled map[string]string
	err      error
	log      *journal
}

func (f *fakeDisabler) DisableSubscription(ctx context.Context, id, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.disabled == nil {
		f.disabled = make(map[string]string)
	}
	if _, ok := f.disabled[id]; ok {
		return false, nil
	}
	f.disabled[id] = reason
	f.log.add("disable:" + id)
	return true, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Deliver(ctx context.Context, endpoint, message string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return true
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeBudget struct {
	denied map[string]bool
}

func (f fakeBudget) Allow(ctx context.Context, username string) bool {
	return !f.denied[username]
}

func fresh(url string, at time.Time) domain.PostObservation {
	return domain.PostObservation{URL: url, CreatedAt: at, Outcome: domain.OutcomeFreshPost}
}

func permanent(reason domain.FailureReason) domain.PostObservation {
	return domain.PostObservation{Outcome: domain.OutcomePermanentError, Reason: reason}
}

func newCountingServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}
