package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Priya8975/post-relay/internal/domain"
	"github.com/Priya8975/post-relay/internal/metrics"
	"github.com/Priya8975/post-relay/internal/store"
	"github.com/Priya8975/post-relay/internal/worker"
)

type PostFetcher interface {
	Fetch(ctx context.Context, handle string, cred domain.Credential) domain.PostObservation
}

type CursorGate interface {
	Admit(ctx context.Context, handle string, candidate time.Time) (bool, error)
}

type Budget interface {
	Allow(ctx context.Context, username string) bool
}

// Notifier sends a single message. Used for operator error reports.
type Notifier interface {
	Deliver(ctx context.Context, endpoint, message string) bool
}

// Deps are the collaborators of a Scheduler. Budget, Reporter and Publisher are optional.
type Deps struct {
	Subscriptions SubscriptionSource
	Credentials   []domain.Credential
	Fetcher       PostFetcher
	Cursor        CursorGate
	Dispatcher    Dispatcher
	Lifecycle     *Lifecycle
	Budget        Budget
	Reporter      Notifier
	ErrorWebhook  string
	Publisher     worker.Publisher
}

// Scheduler runs poll cycles back to back with a fixed sleep in between.
// Accounts inside a cycle are processed one at a time.
type Scheduler struct {
	deps     Deps
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(deps Deps, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{deps: deps, interval: interval, logger: logger}
}

type cycleStats struct {
	accounts  int
	admitted  int
	delivered int
	failed    int
	disabled  int
}

// Run loops until ctx is cancelled. A failing or panicking cycle is logged and
// reported; the loop always sleeps and tries again.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval.String(), "credentials", len(s.deps.Credentials))

	for {
		if err := s.safeCycle(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("scheduler stopped")
				return
			}
			s.logger.Error("poll cycle failed", "error", err)
			s.report(ctx, err)
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
			s.logger.Error("poll cycle panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			metrics.ObserveCycle(start, "panic")
			return
		}
		metrics.ObserveCycle(start, cycleResult(err))
	}()
	return s.RunCycle(ctx)
}

func cycleResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNetworkOutage):
		return "network_outage"
	case errors.Is(err, store.ErrStore):
		return "store_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// RunCycle performs one pass: group, then for each account rotate, fetch,
// gate, and dispatch or disable. A store error or network outage ends the
// cycle early.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	start := time.Now()

	groups, err := LoadGroups(ctx, s.deps.Subscriptions)
	if err != nil {
		return err
	}
	if len(groups) > 0 && len(s.deps.Credentials) == 0 {
		return fmt.Errorf("no scraper credentials configured")
	}

	var stats cycleStats
	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		cred, _ := Assign(i, s.deps.Credentials)
		if err := s.processGroup(ctx, group, cred, &stats); err != nil {
			s.publish(domain.PipelineEvent{Type: domain.EventCycleFailed, Handle: group.Handle, Detail: err.Error()})
			return err
		}
		stats.accounts++
	}

	s.logger.Info("poll cycle complete",
		"accounts", stats.accounts,
		"admitted", stats.admitted,
		"delivered", stats.delivered,
		"failed_deliveries", stats.failed,
		"disabled_groups", stats.disabled,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.publish(domain.PipelineEvent{
		Type:   domain.EventCycleCompleted,
		Detail: fmt.Sprintf("%d accounts, %d new posts", stats.accounts, stats.admitted),
	})
	return nil
}

func (s *Scheduler) processGroup(ctx context.Context, group Group, cred domain.Credential, stats *cycleStats) error {
	log := s.logger.With("handle", group.Handle, "credential", cred.Username)

	if s.deps.Budget != nil && !s.deps.Budget.Allow(ctx, cred.Username) {
		metrics.FetchOutcomes.WithLabelValues(domain.OutcomeTransientError.String()).Inc()
		log.Warn("skipping account, credential over hourly budget")
		return nil
	}

	obs := s.deps.Fetcher.Fetch(ctx, group.Handle, cred)
	metrics.FetchOutcomes.WithLabelValues(obs.Outcome.String()).Inc()

	switch obs.Outcome {
	case domain.OutcomeNoNewPost:
		log.Debug("no qualifying post")
		return nil

	case domain.OutcomeTransientError:
		log.Warn("fetch failed, will retry next cycle", "error", obs.Err)
		return nil

	case domain.OutcomePermanentError:
		log.Warn("account unreadable, disabling subscriptions", "reason", string(obs.Reason), "error", obs.Err)
		if err := s.deps.Lifecycle.HandlePermanent(ctx, group, obs.Reason); err != nil {
			return err
		}
		stats.disabled++
		return nil

	case domain.OutcomeFreshPost:
		admitted, err := s.deps.Cursor.Admit(ctx, group.Handle, obs.CreatedAt)
		if err != nil {
			if errors.Is(err, store.ErrStore) {
				return err
			}
			log.Warn("candidate rejected by cursor gate", "error", err)
			return nil
		}
		if !admitted {
			log.Debug("post already relayed", "url", obs.URL)
			return nil
		}

		stats.admitted++
		metrics.PostsAdmitted.Inc()
		log.Info("new post", "url", obs.URL, "created_at", obs.CreatedAt, "subscribers", len(group.Subscriptions))
		s.publish(domain.PipelineEvent{Type: domain.EventPostAdmitted, Handle: group.Handle, PostURL: obs.URL})

		jobs := make([]worker.Job, 0, len(group.Subscriptions))
		for _, sub := range group.Subscriptions {
			jobs = append(jobs, worker.Job{
				SubscriptionID: sub.ID,
				Handle:         group.Handle,
				Kind:           domain.DeliveryKindPost,
				Endpoint:       sub.WebhookURL,
				Message:        PostMessage(sub.NotifyTemplate, obs.URL),
				PostURL:        obs.URL,
			})
		}
		// The cursor has already advanced; failed deliveries here are not retried.
		for _, r := range s.deps.Dispatcher.Run(ctx, jobs) {
			if r.OK {
				stats.delivered++
			} else {
				stats.failed++
			}
		}
		return nil
	}

	return fmt.Errorf("unknown fetch outcome %d for %s", obs.Outcome, group.Handle)
}

func (s *Scheduler) report(ctx context.Context, cycleErr error) {
	if s.deps.Reporter == nil || s.deps.ErrorWebhook == "" {
		return
	}
	msg := fmt.Sprintf(":rotating_light: post relay cycle failed: %v", cycleErr)
	if !s.deps.Reporter.Deliver(ctx, s.deps.ErrorWebhook, msg) {
		s.logger.Warn("failed to report cycle error to webhook")
	}
}

func (s *Scheduler) publish(event domain.PipelineEvent) {
	if s.deps.Publisher == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	s.deps.Publisher.Publish(event)
}
