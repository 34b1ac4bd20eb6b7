// Package notify implements new-order change detection over a polled live
// order feed. There is no push channel from the store; the detector samples
// the live order count on a fixed interval and infers arrivals from growth.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/order-fulfillment/internal/domain/order"
)

// Feed is the read API the detector needs over live orders.
type Feed interface {
	CountLive(ctx context.Context) (int, error)
	NewestLive(ctx context.Context) (*order.Order, error)
}

// ItemSummary is one line of the notification's display payload.
type ItemSummary struct {
	Name     string
	Quantity int
}

// Snapshot carries the display fields of the newest detected order.
type Snapshot struct {
	OrderID      string
	OrderNumber  string
	CustomerName string
	Items        []ItemSummary
	Total        decimal.Decimal
}

// Outcome is the tagged result of one poll cycle.
type Outcome struct {
	// NewOrder is non-nil when the cycle detected growth in the live count.
	// When several orders arrived between polls only the single newest one
	// is surfaced; the count still catches up in one step.
	NewOrder *Snapshot
}

// Callback receives the newest-order snapshot on detection.
type Callback func(Snapshot)

// Detector polls the feed and fans detected arrivals out to subscribers.
//
// The baseline count is owned exclusively by the single polling goroutine
// and needs no locking. The subscriber registry and the enabled flag are
// toggled from other goroutines and are mutex-protected.
type Detector struct {
	feed     Feed
	interval time.Duration

	// baseline state, poll goroutine only
	lastCount int
	primed    bool

	mu      sync.Mutex
	enabled bool
	nextID  int
	subs    map[int]Callback
}

// New creates a Detector polling the feed at the given interval.
// The detector starts enabled.
func New(feed Feed, interval time.Duration) *Detector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Detector{
		feed:     feed,
		interval: interval,
		enabled:  true,
		subs:     make(map[int]Callback),
	}
}

// Subscribe registers a callback invoked with the newest-order snapshot
// whenever a poll detects growth. It returns an unsubscribe handle.
// Callbacks run synchronously on the polling goroutine and should be fast.
func (d *Detector) Subscribe(fn Callback) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

// SetEnabled toggles emission. Polling continues while disabled so the
// baseline stays current; re-enabling never replays orders that arrived
// while the detector was muted.
func (d *Detector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// Run polls until ctx is cancelled. Poll failures are logged and retried on
// the next tick; the detector is a best-effort convenience, not a
// delivery-guaranteed channel.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	lg := zctx.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcome, err := d.poll(ctx)
			if err != nil {
				lg.Warn("order poll failed", zap.Error(err))
				continue
			}
			if outcome.NewOrder != nil {
				d.emit(*outcome.NewOrder)
			}
		}
	}
}

// poll runs one detection cycle. The very first successful poll only
// establishes the baseline and never reports an arrival. A shrinking count
// (cancellations, archival) updates the baseline silently; monotonicity is
// not assumed. A failed cycle leaves the baseline untouched so the next
// tick re-detects the same growth and surfaces the arrival then.
func (d *Detector) poll(ctx context.Context) (Outcome, error) {
	count, err := d.feed.CountLive(ctx)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "count live orders")
	}

	if !d.primed {
		d.primed = true
		d.lastCount = count
		return Outcome{}, nil
	}

	if count <= d.lastCount {
		d.lastCount = count
		return Outcome{}, nil
	}

	newest, err := d.feed.NewestLive(ctx)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "fetch newest order")
	}

	d.lastCount = count
	return Outcome{NewOrder: snapshotOf(newest)}, nil
}

func (d *Detector) emit(snap Snapshot) {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return
	}
	callbacks := make([]Callback, 0, len(d.subs))
	for _, fn := range d.subs {
		callbacks = append(callbacks, fn)
	}
	d.mu.Unlock()

	for _, fn := range callbacks {
		fn(snap)
	}
}

func snapshotOf(o *order.Order) *Snapshot {
	items := make([]ItemSummary, len(o.Items))
	for i, item := range o.Items {
		items[i] = ItemSummary{Name: item.Name, Quantity: item.Quantity}
	}
	return &Snapshot{
		OrderID:      o.ID,
		OrderNumber:  o.Number,
		CustomerName: o.Customer.Name,
		Items:        items,
		Total:        o.Total,
	}
}
