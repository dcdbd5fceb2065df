// Package dictionary holds the hint words used to bias recognition toward
// specific vocabulary.
//
// A [Context] is scoped to one client: its words are attached to every Start
// message and forwarded live to an open connection on update. A nil *Context
// behaves like an empty one.
package dictionary

import (
	"log/slog"
	"strings"
	"sync"
)

// Notifier receives the full word list whenever it changes. The session
// client implements it by sending an update_dictionary message when a
// connection is open.
type Notifier interface {
	SendDictionary(words []string) error
}

// Context is a mutable, deduplicated, ordered set of hint words. All methods
// are safe for concurrent use.
type Context struct {
	// notifyMu serializes mutations end to end so notifications reach the
	// notifier in the order the lists were stored. Taken before mu.
	notifyMu sync.Mutex

	mu       sync.RWMutex
	words    []string
	notifier Notifier
}

// New creates a Context seeded with words. The initial words are not
// forwarded anywhere.
func New(words ...string) *Context {
	return &Context{words: normalize(words)}
}

// SetNotifier registers n to receive every later change. Pass nil to detach.
func (c *Context) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

// Words returns a copy of the current word list, or nil when empty.
func (c *Context) Words() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.words) == 0 {
		return nil
	}
	out := make([]string, len(c.words))
	copy(out, c.words)
	return out
}

// Len returns the number of words.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.words)
}

// Update replaces the word list. Words are trimmed, empty entries dropped,
// and duplicates removed keeping the first occurrence. The new list is
// forwarded to the notifier immediately; a forwarding error is returned but
// the list is stored regardless and used by the next session.
func (c *Context) Update(words []string) error {
	next := normalize(words)
	return c.mutate(func([]string) []string { return next })
}

// Add appends words not already present.
func (c *Context) Add(words ...string) error {
	return c.mutate(func(cur []string) []string {
		return normalize(append(append([]string(nil), cur...), words...))
	})
}

// Remove deletes the given words. Matching is exact after trimming.
func (c *Context) Remove(words ...string) error {
	drop := make(map[string]struct{}, len(words))
	for _, w := range words {
		drop[strings.TrimSpace(w)] = struct{}{}
	}
	return c.mutate(func(cur []string) []string {
		kept := make([]string, 0, len(cur))
		for _, w := range cur {
			if _, ok := drop[w]; !ok {
				kept = append(kept, w)
			}
		}
		return kept
	})
}

// Clear removes all words. An empty update is still forwarded so the service
// drops its hints too.
func (c *Context) Clear() error {
	return c.mutate(func([]string) []string { return nil })
}

// mutate computes and stores the next list under one write lock, then
// forwards it while still holding notifyMu. mu is released before the
// notifier runs because the client reads Words while holding its own lock.
func (c *Context) mutate(fn func(cur []string) []string) error {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.words = fn(c.words)
	n := c.notifier
	snapshot := append([]string(nil), c.words...)
	c.mu.Unlock()

	slog.Debug("dictionary updated", "words", len(snapshot))
	if n == nil {
		return nil
	}
	return n.SendDictionary(snapshot)
}

func normalize(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
