package domain

import "time"

// Outcome classifies how one subscription fared in a sync run.
type Outcome string

const (
	// OutcomeOK means a live strategy produced fresh data.
	OutcomeOK Outcome = "OK"
	// OutcomeDelayed means no live success but a cached snapshot was substituted.
	OutcomeDelayed Outcome = "DELAYED"
	// OutcomeFailed means no live success and nothing to degrade to.
	OutcomeFailed Outcome = "FAILED"
)

// SubscriptionResult is the per-subscription record of one sync run.
type SubscriptionResult struct {
	SubscriptionID int64
	Name           string
	Outcome        Outcome
	Strategy       string
	NewArticles    int
	ErrorKind      string
	ErrorMessage   string
	CacheStaleness time.Duration
}

// RunStats aggregates one sync run.
type RunStats struct {
	RunID       string
	Trigger     string
	StartedAt   time.Time
	FinishedAt  time.Time
	Results     []SubscriptionResult
	AuthAborted bool
}

// Counts tallies outcomes.
func (r *RunStats) Counts() (ok, delayed, failed int) {
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeOK:
			ok++
		case OutcomeDelayed:
			delayed++
		default:
			failed++
		}
	}
	return ok, delayed, failed
}

// Watermark is a subscription's last confirmed successful sync time.
// It advances only on an accepted outcome and never regresses.
type Watermark struct {
	SubscriptionID int64     `db:"subscription_id"`
	LastSuccessAt  time.Time `db:"last_success_at"`
}

// CoverageReport is the per-day coverage computation.
type CoverageReport struct {
	Date        string
	Total       int
	OK          int
	Delayed     int
	Failed      int
	Ratio       float64
	StrictRatio float64
	Target      float64
	Pass        bool
	Details     []SubscriptionResult
}

// SessionState is the derived state of a provider session, computed from the
// clock at read time.
type SessionState string

const (
	SessionMissing SessionState = "missing"
	SessionValid   SessionState = "valid"
	SessionExpired SessionState = "expired"
)

// SessionMeta is the persisted session record. The credential itself lives
// only in the vault, never here.
type SessionMeta struct {
	Provider  string    `db:"provider"`
	Backend   string    `db:"backend"`
	IssuedAt  time.Time `db:"issued_at"`
	ExpiresAt time.Time `db:"expires_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// State derives the session state from the given instant.
func (m *SessionMeta) State(now time.Time) SessionState {
	if m == nil {
		return SessionMissing
	}
	if !now.Before(m.ExpiresAt) {
		return SessionExpired
	}
	return SessionValid
}
