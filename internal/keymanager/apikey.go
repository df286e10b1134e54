package keymanager

import "time"

// Status is an ApiKey's availability state.
type Status int

const (
	Ready Status = iota
	Exhausted
)

// ApiKey is one credential in a platform's pool. A key is equal to
// another iff its Secret is equal; ordering inside the pool is by
// earliest next-eligible time, with least-recently-used breaking
// ties.
type ApiKey struct {
	Secret       string
	Platform     string
	Status       Status
	LastUse      time.Time
	NextEligible time.Time
}

// Handle is a temporary, exclusively-held reference to an ApiKey,
// returned to the Manager via Release/Exchange when work finishes. It
// satisfies internal/dag's Handle interface so Runnables can depend
// on that interface instead of this concrete type.
type Handle struct {
	key *ApiKey
}

func (h *Handle) Platform() string { return h.key.Platform }
func (h *Handle) Secret() string   { return h.key.Secret }

// MarkExhausted records that this key's current use exhausted it
// (e.g. hit a rate limit); the holder observes and mutates this while
// the key is checked out, per the Manager's concurrency contract.
func (h *Handle) MarkExhausted() { h.key.Status = Exhausted }

// MarkReady records that this key's current use did not exhaust it.
// Keys start Ready; callers only need this to undo a MarkExhausted
// made earlier in the same checkout.
func (h *Handle) MarkReady() { h.key.Status = Ready }
