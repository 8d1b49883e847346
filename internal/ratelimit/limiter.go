package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"litreview/internal/config"
)

// Engine names the two chat-completion engines the limiter budgets for.
type Engine string

const (
	EnginePrimary Engine = "primary"
	EngineBackup  Engine = "backup"
)

// Verdict is the discriminated outcome of a Consume call.
type Verdict int

const (
	// Allow means both budgets were debited and the caller may proceed.
	Allow Verdict = iota
	// RetryAfter means the caller should wait Decision.Wait and ask again.
	RetryAfter
	// SwitchToBackup means the request can never fit the primary engine's
	// token capacity; the backup engine may still take it.
	SwitchToBackup
	// LimitExceeded means the request exceeds even the backup engine's
	// capacity. Terminal for the work item.
	LimitExceeded
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case RetryAfter:
		return "retry_after"
	case SwitchToBackup:
		return "switch_to_backup"
	case LimitExceeded:
		return "limit_exceeded"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Decision pairs a Verdict with the wait duration for RetryAfter.
type Decision struct {
	Verdict Verdict
	Wait    time.Duration
}

type bucket struct {
	capacity   float64
	available  float64
	refillRate float64 // units per second
	lastRefill time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.available = min(b.capacity, b.available+elapsed*b.refillRate)
	b.lastRefill = now
}

// waitFor returns how long until the bucket can cover need.
func (b *bucket) waitFor(need float64) time.Duration {
	if b.available >= need || b.refillRate <= 0 {
		return 0
	}
	secs := (need - b.available) / b.refillRate
	return time.Duration(secs * float64(time.Second))
}

type engineState struct {
	mu       sync.Mutex
	reactive bool
	tpm      bucket
	rpm      bucket
}

// Limiter tracks independent TPM and RPM token buckets for the primary and
// backup engines. An engine whose configured TPM or RPM limit is zero runs
// in reactive mode: Consume always allows and rate control is deferred to
// the HTTP layer's 429 handling.
type Limiter struct {
	primary engineState
	backup  engineState
	now     func() time.Time
}

// NewLimiter builds a limiter from the configured per-engine limits.
func NewLimiter(limits config.LimitsConfig) *Limiter {
	l := &Limiter{now: time.Now}
	start := l.now()
	initEngine(&l.primary, limits.PrimaryTPM, limits.PrimaryRPM, start)
	initEngine(&l.backup, limits.BackupTPM, limits.BackupRPM, start)
	return l
}

func initEngine(st *engineState, tpmLimit, rpmLimit int, start time.Time) {
	if tpmLimit <= 0 || rpmLimit <= 0 {
		st.reactive = true
		return
	}
	st.tpm = bucket{
		capacity:   float64(tpmLimit),
		available:  float64(tpmLimit),
		refillRate: float64(tpmLimit) / 60.0,
		lastRefill: start,
	}
	st.rpm = bucket{
		capacity:   float64(rpmLimit),
		available:  float64(rpmLimit),
		refillRate: float64(rpmLimit) / 60.0,
		lastRefill: start,
	}
}

func (l *Limiter) state(engine Engine) (*engineState, error) {
	switch engine {
	case EnginePrimary:
		return &l.primary, nil
	case EngineBackup:
		return &l.backup, nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown engine %q", engine)
	}
}

// Consume attempts to debit tokensNeeded TPM units and requestsNeeded RPM
// units from the named engine. Invalid inputs are programmer errors and
// return an error; budget pressure is reported through the Decision.
func (l *Limiter) Consume(tokensNeeded, requestsNeeded int, engine Engine) (Decision, error) {
	if tokensNeeded <= 0 {
		return Decision{}, fmt.Errorf("ratelimit: tokensNeeded must be > 0, got %d", tokensNeeded)
	}
	if requestsNeeded <= 0 {
		return Decision{}, fmt.Errorf("ratelimit: requestsNeeded must be > 0, got %d", requestsNeeded)
	}
	st, err := l.state(engine)
	if err != nil {
		return Decision{}, err
	}
	if st.reactive {
		return Decision{Verdict: Allow}, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := l.now()
	st.tpm.refill(now)
	st.rpm.refill(now)

	// Size pre-check: a request larger than the whole bucket can never be
	// satisfied by waiting.
	if float64(tokensNeeded) > st.tpm.capacity {
		if engine == EnginePrimary {
			return Decision{Verdict: SwitchToBackup}, nil
		}
		return Decision{Verdict: LimitExceeded}, nil
	}

	needTokens := float64(tokensNeeded)
	needRequests := float64(requestsNeeded)
	if st.tpm.available >= needTokens && st.rpm.available >= needRequests {
		st.tpm.available -= needTokens
		st.rpm.available -= needRequests
		return Decision{Verdict: Allow}, nil
	}

	wait := st.tpm.waitFor(needTokens)
	if w := st.rpm.waitFor(needRequests); w > wait {
		wait = w
	}
	return Decision{Verdict: RetryAfter, Wait: wait}, nil
}

// Status is a point-in-time snapshot of one engine's budgets, for logging.
type Status struct {
	Reactive     bool
	TPMAvailable float64
	TPMCapacity  float64
	RPMAvailable float64
	RPMCapacity  float64
}

// EngineStatus reports the current (post-refill) budget state of an engine.
func (l *Limiter) EngineStatus(engine Engine) (Status, error) {
	st, err := l.state(engine)
	if err != nil {
		return Status{}, err
	}
	if st.reactive {
		return Status{Reactive: true}, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	now := l.now()
	st.tpm.refill(now)
	st.rpm.refill(now)
	return Status{
		TPMAvailable: st.tpm.available,
		TPMCapacity:  st.tpm.capacity,
		RPMAvailable: st.rpm.available,
		RPMCapacity:  st.rpm.capacity,
	}, nil
}
