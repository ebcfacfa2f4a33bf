package domain

import "time"

// Outcome classifies the result of one fetch for a monitored account.
type Outcome int

const (
	// OutcomeFreshPost means a qualifying candidate post was found. Whether it is
	// new to subscribers is decided by the cursor gate, not the fetcher.
	OutcomeFreshPost Outcome = iota
	OutcomeNoNewPost
	OutcomeTransientError
	OutcomePermanentError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFreshPost:
		return "fresh_post"
	case OutcomeNoNewPost:
		return "no_new_post"
	case OutcomeTransientError:
		return "transient_error"
	case OutcomePermanentError:
		return "permanent_error"
	default:
		return "unknown"
	}
}

// FailureReason explains a permanent fetch failure.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonAccountNotFound  FailureReason = "account_not_found"
	ReasonAccessRestricted FailureReason = "access_restricted"
)

// Post is one entry of a monitored account's recent timeline.
// CreatedAt may be zero when only CreatedAtRaw was provided by the source.
type Post struct {
	URL          string
	CreatedAt    time.Time
	CreatedAtRaw string
	IsReshare    bool
}

// Identity is the resolved platform identity of a monitored account.
type Identity struct {
	ID      string
	Handle  string
	Private bool
}

// PostObservation is the ephemeral result of one fetch. It is never persisted.
type PostObservation struct {
	Handle    string
	URL       string
	CreatedAt time.Time
	Outcome   Outcome
	Reason    FailureReason
	Err       error
}
