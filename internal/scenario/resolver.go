package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/retry"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
)

// Store is the storage the resolver needs. InsertScenario must insert only
// when no row with the same hash exists and report whether it inserted.
type Store interface {
	FindScenarioIDs(ctx context.Context, hash int64) ([]int64, error)
	InsertScenario(ctx context.Context, rec *domain.ScenarioRecord) (bool, error)
}

// errNotVisible is returned while an inserted row cannot be read back yet.
var errNotVisible = errors.New("scenario row not visible yet")

// Resolution is the outcome of Resolve.
type Resolution struct {
	ID    int64
	Hash  int64
	IsNew bool
}

// Resolver maps scenarios to stored scenario ids, inserting new ones.
type Resolver struct {
	store  Store
	logger infralogger.Logger
	retry  retry.Config
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, logger infralogger.Logger) *Resolver {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 5
	cfg.InitialDelay = 20 * time.Millisecond
	cfg.IsRetryable = func(err error) bool {
		return errors.Is(err, errNotVisible) || retry.DefaultIsRetryable(err)
	}
	return &Resolver{store: store, logger: logger, retry: cfg}
}

// Resolve returns the id of the stored scenario equal to s, inserting it when
// absent. The row is always read back after an insert, so a resolver that
// loses an insert race returns the winner's id. More than one row for a
// hash is a DataIntegrityError.
func (r *Resolver) Resolve(ctx context.Context, s *domain.Scenario) (Resolution, error) {
	h := StorageHash(Hash(s))
	res := Resolution{Hash: h}

	id, found, err := r.lookup(ctx, h)
	if err != nil {
		return res, err
	}
	if found {
		res.ID = id
		return res, nil
	}

	inserted, err := r.store.InsertScenario(ctx, domain.NewScenarioRecord(s, h))
	if err != nil {
		return res, fmt.Errorf("insert scenario: %w", err)
	}

	err = retry.Retry(ctx, r.retry, func() error {
		var lookupErr error
		id, found, lookupErr = r.lookup(ctx, h)
		if lookupErr != nil {
			var integrity *domain.DataIntegrityError
			if errors.As(lookupErr, &integrity) {
				return retry.Permanent(lookupErr)
			}
			return lookupErr
		}
		if !found {
			return errNotVisible
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("read back scenario: %w", err)
	}

	if !inserted {
		r.logger.Debug("Scenario inserted concurrently, using existing row",
			infralogger.Int64("hash", h),
			infralogger.ScenarioID(id),
		)
	}

	res.ID = id
	res.IsNew = inserted
	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, h int64) (int64, bool, error) {
	ids, err := r.store.FindScenarioIDs(ctx, h)
	if err != nil {
		return 0, false, fmt.Errorf("find scenario: %w", err)
	}
	switch len(ids) {
	case 0:
		return 0, false, nil
	case 1:
		return ids[0], true, nil
	default:
		return 0, false, &domain.DataIntegrityError{Hash: h, Count: len(ids)}
	}
}
