package notification

import (
	"context"

	"github.com/shaharia-lab/notifyd/internal/storage"
)

// Verdict is a guard's decision for one channel.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Allow returns a passing verdict.
func Allow() Verdict { return Verdict{Allowed: true} }

// Deny returns a rejecting verdict with reason.
func Deny(reason string) Verdict { return Verdict{Reason: reason} }

// Guard vetoes a (recipient, channel) pair. Implementations must be safe for
// concurrent use; the verdict is the only output.
type Guard interface {
	Name() string
	Check(ctx context.Context, n Notifiable, channel string, tmpl *storage.Template, intent Intent) Verdict
}

type funcGuard struct {
	name string
	fn   func(ctx context.Context, n Notifiable, channel string, tmpl *storage.Template, intent Intent) Verdict
}

func (g funcGuard) Name() string { return g.name }

func (g funcGuard) Check(ctx context.Context, n Notifiable, channel string, tmpl *storage.Template, intent Intent) Verdict {
	return g.fn(ctx, n, channel, tmpl, intent)
}

// GuardFunc wraps fn as a named Guard.
func GuardFunc(name string, fn func(ctx context.Context, n Notifiable, channel string, tmpl *storage.Template, intent Intent) Verdict) Guard {
	return funcGuard{name: name, fn: fn}
}

// FilterResult partitions selected channels into allowed and rejected.
type FilterResult struct {
	Allowed  []string          `json:"allowed"`
	Rejected map[string]string `json:"rejected"`
}

// GuardManager runs the guard chain over a selection.
type GuardManager struct {
	guards []Guard
}

// NewGuardManager creates a manager running guards in the given order.
// An empty chain allows every channel.
func NewGuardManager(guards ...Guard) *GuardManager {
	return &GuardManager{guards: guards}
}

// Guards returns the configured chain.
func (m *GuardManager) Guards() []Guard {
	return m.guards
}

// Filter evaluates every selected channel. For each channel the guards run in
// order and the first denial stops evaluation for that channel.
func (m *GuardManager) Filter(ctx context.Context, n Notifiable, intent Intent, sel *Selection) FilterResult {
	res := FilterResult{Allowed: []string{}, Rejected: map[string]string{}}
	for _, ch := range sel.Channels() {
		tmpl := sel.Template(ch)
		if reason, denied := m.check(ctx, n, ch, tmpl, intent); denied {
			res.Rejected[ch] = reason
			continue
		}
		res.Allowed = append(res.Allowed, ch)
	}
	return res
}

func (m *GuardManager) check(ctx context.Context, n Notifiable, ch string, tmpl *storage.Template, intent Intent) (string, bool) {
	for _, g := range m.guards {
		if g == nil {
			continue
		}
		v := g.Check(ctx, n, ch, tmpl, intent)
		if v.Allowed {
			continue
		}
		if v.Reason == "" {
			return "rejected by " + g.Name(), true
		}
		return v.Reason, true
	}
	return "", false
}
