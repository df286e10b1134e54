package dag

import "context"

// Handle is a temporary, exclusively-held reference to a credential
// handed out by a KeyAcquirer. It carries no behavior of its own so
// that internal/dag never needs to import the concrete key manager
// implementation; whatever keymanager.Manager returns from Acquire
// satisfies this type directly.
type Handle interface {
	Platform() string
}

// KeyAcquirer is the contract a Runnable needing credentials consumes
// from its environment: acquire, exchange, release. It is satisfied
// structurally by internal/keymanager.Manager; internal/dag never
// imports that package, so the key manager stays an ordinary object
// passed by shared reference rather than a global.
type KeyAcquirer interface {
	Acquire(ctx context.Context, platform string, wait bool) (Handle, error)
	Exchange(ctx context.Context, platform string, h Handle, wait bool) (Handle, error)
	Release(h Handle, exhausted bool)
}
