// Package archive relocates terminal orders from the live store into the
// order history store. Each moved order is copied with provenance metadata
// and deleted from the live set in one atomic batch, so an order is never
// lost and never exists in both stores.
package archive

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-fulfillment/internal/domain/order"
)

// SkipReason explains why an archival candidate was not moved.
type SkipReason string

const (
	SkipNotFound    SkipReason = "not_found"
	SkipNotTerminal SkipReason = "not_terminal"
)

// ErrNoCandidates is returned when MoveToHistory is called with no ids.
var ErrNoCandidates = errors.New("no candidate order ids")

// Record is an archived order: the full business state plus provenance.
// OriginalCreatedAt preserves the source order's creation time so history
// can be sorted by the original event rather than by archival time.
type Record struct {
	order.Order
	MovedToHistoryAt  time.Time
	MovedBy           string
	OriginalCreatedAt time.Time
}

// Skip names one candidate that was not moved and why.
type Skip struct {
	ID     string
	Reason SkipReason
}

// Result is the per-id outcome report of an archival run.
type Result struct {
	MovedCount int
	MovedIDs   []string
	Skipped    []Skip
	// Failed lists ids whose batch could not be committed, with the store
	// error. Ids in earlier committed batches stay moved; the caller may
	// retry the failed subset.
	Failed []Skip
}

// Filter narrows a history query. Zero fields are ignored.
type Filter struct {
	From   time.Time
	To     time.Time
	Search string
	Status order.Status
	Limit  int
}

// Repository is the persistence contract for archival.
type Repository interface {
	// GetLiveByIDs fetches the live orders for the given ids. Missing ids
	// are simply absent from the returned map.
	GetLiveByIDs(ctx context.Context, ids []string) (map[string]*order.Order, error)

	// Archive writes one history record per order and deletes the live rows
	// in a single transaction. Either every order in the batch moves or
	// none of them do. It returns the ids that actually moved; an order
	// that disappeared since it was fetched is absent from the result.
	Archive(ctx context.Context, orders []*order.Order, movedBy string, movedAt time.Time) ([]string, error)

	// ListTerminalBefore returns ids of live orders in a terminal status
	// whose last update is older than cutoff.
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// Query returns history records matching the filter, newest archival
	// first.
	Query(ctx context.Context, f Filter) ([]Record, error)
}

// Service implements the archival workflow over a Repository.
type Service struct {
	repo      Repository
	batchSize int
	now       func() time.Time
}

// NewService creates an archival Service. batchSize bounds how many orders
// share one transaction; values below 1 fall back to 100.
func NewService(repo Repository, batchSize int) *Service {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Service{repo: repo, batchSize: batchSize, now: time.Now}
}

// MoveToHistory relocates every eligible order in ids to the history store.
// Orders that are missing or not in a terminal status are skipped, not
// errors. Eligible orders are processed in bounded atomic batches; a batch
// that fails to commit is reported id-by-id in Result.Failed without
// affecting batches already committed.
func (s *Service) MoveToHistory(ctx context.Context, ids []string, actor string) (*Result, error) {
	if len(ids) == 0 {
		return nil, ErrNoCandidates
	}

	live, err := s.repo.GetLiveByIDs(ctx, dedupe(ids))
	if err != nil {
		return nil, errors.Wrap(err, "fetch candidates")
	}

	result := &Result{}
	var eligible []*order.Order
	for _, id := range dedupe(ids) {
		o, ok := live[id]
		switch {
		case !ok:
			result.Skipped = append(result.Skipped, Skip{ID: id, Reason: SkipNotFound})
		case !o.Status.IsTerminal():
			result.Skipped = append(result.Skipped, Skip{ID: id, Reason: SkipNotTerminal})
		default:
			eligible = append(eligible, o)
		}
	}

	movedAt := s.now()
	for start := 0; start < len(eligible); start += s.batchSize {
		end := min(start+s.batchSize, len(eligible))
		batch := eligible[start:end]

		moved, err := s.repo.Archive(ctx, batch, actor, movedAt)
		if err != nil {
			zctx.From(ctx).Warn("archive batch failed",
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			for _, o := range batch {
				result.Failed = append(result.Failed, Skip{ID: o.ID, Reason: SkipReason(err.Error())})
			}
			continue
		}

		// An order can vanish between the candidate fetch and the batch,
		// e.g. a concurrent archival got there first.
		movedSet := make(map[string]struct{}, len(moved))
		for _, id := range moved {
			movedSet[id] = struct{}{}
		}
		for _, o := range batch {
			if _, ok := movedSet[o.ID]; ok {
				result.MovedIDs = append(result.MovedIDs, o.ID)
			} else {
				result.Skipped = append(result.Skipped, Skip{ID: o.ID, Reason: SkipNotFound})
			}
		}
		result.MovedCount += len(moved)
	}

	return result, nil
}

// QueryHistory returns archived orders matching the filter, ordered by
// moved_to_history_at descending.
func (s *Service) QueryHistory(ctx context.Context, f Filter) ([]Record, error) {
	return s.repo.Query(ctx, f)
}

// SweepBefore archives every terminal live order last updated before cutoff.
// The scheduled sweep and the manual path share the same selection and
// atomicity rules.
func (s *Service) SweepBefore(ctx context.Context, cutoff time.Time, actor string) (*Result, error) {
	ids, err := s.repo.ListTerminalBefore(ctx, cutoff, 0)
	if err != nil {
		return nil, errors.Wrap(err, "list terminal orders")
	}
	if len(ids) == 0 {
		return &Result{}, nil
	}
	return s.MoveToHistory(ctx, ids, actor)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
