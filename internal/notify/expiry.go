package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"k8s.io/utils/clock"

	"github.com/cephasgm/safety-sync/internal/config"
	"github.com/cephasgm/safety-sync/internal/model"
)

// Rule watches one domain. Field is a gjson path into each record.
type Rule struct {
	Field  string
	Window time.Duration
}

// RulesFromConfig collects the expiry rules of all configured domains.
func RulesFromConfig(cfg *config.Config) map[string]Rule {
	rules := map[string]Rule{}
	for _, d := range cfg.Domains {
		if d.Expiry == nil {
			continue
		}
		rules[d.Name] = Rule{Field: d.Expiry.Field, Window: d.Expiry.GetWindow()}
	}
	return rules
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e11

// ExpiryWatcher scans snapshots in the background and notifies about records
// expiring within their domain's window. Scans never block or fail a sync.
type ExpiryWatcher struct {
	rules    map[string]Rule
	notifier Notifier
	clock    clock.PassiveClock

	wg sync.WaitGroup
}

// WatcherOption configures an ExpiryWatcher
type WatcherOption func(*ExpiryWatcher)

// WithWatcherClock overrides the clock.
func WithWatcherClock(clk clock.PassiveClock) WatcherOption {
	return func(w *ExpiryWatcher) {
		w.clock = clk
	}
}

// NewExpiryWatcher creates a watcher for the given per-domain rules.
func NewExpiryWatcher(rules map[string]Rule, notifier Notifier, opts ...WatcherOption) *ExpiryWatcher {
	w := &ExpiryWatcher{
		rules:    rules,
		notifier: notifier,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process starts a background scan of snapshot when domain has a rule.
func (w *ExpiryWatcher) Process(ctx context.Context, domain string, snapshot *model.Snapshot) {
	rule, ok := w.rules[domain]
	if !ok || snapshot == nil {
		return
	}

	// the scan outlives the pass that triggered it
	ctx = context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Expiry scan panicked", "domain", domain, "panic", r)
			}
		}()

		n := Scan(domain, rule, snapshot.Records, w.clock.Now())
		if n.Empty() {
			return
		}
		if err := w.notifier.Notify(ctx, n); err != nil {
			slog.Warn("Failed to deliver expiry notification", "domain", domain, "error", err)
		}
	}()
}

// Wait blocks until every scan started so far has finished.
func (w *ExpiryWatcher) Wait() {
	w.wg.Wait()
}

// Scan classifies records against rule at now. Records without a parseable
// expiry are ignored.
func Scan(domain string, rule Rule, records []model.Record, now time.Time) Notification {
	n := Notification{
		Domain:      domain,
		Field:       rule.Field,
		GeneratedAt: now,
		Window:      rule.Window,
	}
	horizon := now.Add(rule.Window)

	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		expiresAt, ok := parseExpiry(gjson.GetBytes(raw, rule.Field))
		if !ok {
			continue
		}
		switch {
		case expiresAt.Before(now):
			n.ExpiredCount++
		case !expiresAt.After(horizon):
			n.Expiring = append(n.Expiring, ExpiringRecord{RecordID: rec.ID(), ExpiresAt: expiresAt})
		}
	}

	sort.Slice(n.Expiring, func(i, j int) bool {
		return n.Expiring[i].ExpiresAt.Before(n.Expiring[j].ExpiresAt)
	})
	return n
}

func parseExpiry(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.String:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v.Str); err == nil {
				return t.UTC(), true
			}
		}
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			return time.Time{}, false
		}
		if v.Num >= epochMillisThreshold {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}
