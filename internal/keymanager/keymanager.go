// Package keymanager hands out rate-limited vendor credentials. It
// implements a rotating API key manager: a per-platform pool of keys
// ordered by earliest next-eligible time, supporting blocking and
// non-blocking acquisition, cool-down after exhaustion, and atomic
// return-plus-acquire.
package keymanager

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/swarmguard/databridge/internal/dag"
)

const defaultCrashedHolderCooldown = 5 * time.Minute

// Manager is a process-local, mutex-protected multi-platform key
// pool. The zero value is not usable; construct with New.
type Manager struct {
	mu    sync.Mutex
	cond  *sync.Cond
	clock dag.Clock

	queues    map[string]*keyHeap
	cooldowns map[string]time.Duration
}

// New constructs an empty Manager. Platforms become known the first
// time AddPlatform or Add is called for them.
func New(clock dag.Clock) *Manager {
	if clock == nil {
		clock = dag.SystemClock
	}
	m := &Manager{
		clock:     clock,
		queues:    make(map[string]*keyHeap),
		cooldowns: make(map[string]time.Duration),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// AddPlatform registers platform with the given cool-down window,
// even before any key is added to it.
func (m *Manager) AddPlatform(platform string, cooldown time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[platform]; !ok {
		h := &keyHeap{}
		heap.Init(h)
		m.queues[platform] = h
	}
	m.cooldowns[platform] = cooldown
}

// Add inserts secret into platform's pool with next-eligible = now.
func (m *Manager) Add(platform, secret string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.queues[platform]
	if !ok {
		h = &keyHeap{}
		heap.Init(h)
		m.queues[platform] = h
	}
	now := m.clock.Now()
	heap.Push(h, &ApiKey{Secret: secret, Platform: platform, Status: Ready, NextEligible: now, LastUse: now})
	m.cond.Broadcast()
}

func (m *Manager) cooldownFor(platform string) time.Duration {
	if d, ok := m.cooldowns[platform]; ok {
		return d
	}
	return defaultCrashedHolderCooldown
}

// popEligibleLocked must be called with m.mu held. It returns the
// key with the smallest next-eligible time if one is eligible now,
// transitioning an Exhausted key whose cool-down has elapsed back to
// Ready in the process.
func (m *Manager) popEligibleLocked(platform string) (*ApiKey, bool) {
	h, ok := m.queues[platform]
	if !ok {
		return nil, false
	}
	top := h.peek()
	if top == nil {
		return nil, false
	}
	now := m.clock.Now()
	if top.Status == Exhausted {
		if now.Before(top.NextEligible) {
			return nil, false
		}
		top.Status = Ready
	} else if top.NextEligible.After(now) {
		return nil, false
	}
	heap.Pop(h)
	top.LastUse = now
	return top, true
}

func (m *Manager) earliestEligibleLocked(platform string) (time.Time, bool) {
	h, ok := m.queues[platform]
	if !ok || h.Len() == 0 {
		return time.Time{}, false
	}
	return h.peek().NextEligible, true
}

// waitLocked blocks until either the platform's earliest-eligible
// deadline passes, a release/add broadcasts, or ctx is done. It must
// be called with m.mu held and returns with m.mu held.
func (m *Manager) waitLocked(ctx context.Context, deadline time.Time) {
	done := make(chan struct{})
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	timer := time.AfterFunc(d, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer timer.Stop()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				m.mu.Lock()
				m.cond.Broadcast()
				m.mu.Unlock()
			case <-done:
			}
		}()
	}
	m.cond.Wait()
	close(done)
}

// Acquire removes and returns the eligible key with the smallest
// next-eligible time (ties broken by least-recently-used). If none is
// eligible: with wait=false it returns NoKeyAvailable immediately;
// with wait=true it blocks, re-checking eligibility on every wake,
// until one becomes eligible or ctx is cancelled.
func (m *Manager) Acquire(ctx context.Context, platform string, wait bool) (dag.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[platform]; !ok {
		return nil, &KeyError{Kind: NoSuchPlatform, Platform: platform}
	}

	for {
		if key, ok := m.popEligibleLocked(platform); ok {
			return &Handle{key: key}, nil
		}
		if !wait {
			return nil, &KeyError{Kind: NoKeyAvailable, Platform: platform}
		}
		deadline, any := m.earliestEligibleLocked(platform)
		if !any {
			return nil, &KeyError{Kind: NoKeyAvailable, Platform: platform}
		}
		m.waitLocked(ctx, deadline)
		if ctx != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

// Exchange atomically returns h's key and acquires a (possibly
// different) eligible key in its place, so no other caller can ever
// observe the returned key as preferred over the exchanging caller.
func (m *Manager) Exchange(ctx context.Context, platform string, h dag.Handle, wait bool) (dag.Handle, error) {
	handle, ok := h.(*Handle)
	if !ok || handle == nil {
		return nil, &KeyError{Kind: NoKeyAvailable, Platform: platform}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.fileBackLocked(handle.key)

	for {
		if key, ok := m.popEligibleLocked(platform); ok {
			return &Handle{key: key}, nil
		}
		if !wait {
			return nil, &KeyError{Kind: NoKeyAvailable, Platform: platform}
		}
		deadline, any := m.earliestEligibleLocked(platform)
		if !any {
			return nil, &KeyError{Kind: NoKeyAvailable, Platform: platform}
		}
		m.waitLocked(ctx, deadline)
		if ctx != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

// Release files a key back into its platform's pool: an Exhausted key
// rests until now+cooldown; a Ready key is immediately eligible again.
func (m *Manager) Release(h dag.Handle, exhausted bool) {
	handle, ok := h.(*Handle)
	if !ok || handle == nil {
		return
	}
	if exhausted {
		handle.MarkExhausted()
	}
	m.mu.Lock()
	m.fileBackLocked(handle.key)
	m.mu.Unlock()
}

// fileBackLocked must be called with m.mu held.
func (m *Manager) fileBackLocked(k *ApiKey) {
	now := m.clock.Now()
	if k.Status == Exhausted {
		k.NextEligible = now.Add(m.cooldownFor(k.Platform))
	} else {
		k.NextEligible = now
	}
	h, ok := m.queues[k.Platform]
	if !ok {
		h = &keyHeap{}
		heap.Init(h)
		m.queues[k.Platform] = h
	}
	heap.Push(h, k)
	m.cond.Broadcast()
}

// ReadyCount returns the number of keys in platform's pool currently
// marked Ready, regardless of eligibility. Used by tests asserting
// the invariant that observable ready keys never exceed keys added.
func (m *Manager) ReadyCount(platform string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.queues[platform]
	if !ok {
		return 0
	}
	n := 0
	for _, k := range *h {
		if k.Status == Ready {
			n++
		}
	}
	return n
}
