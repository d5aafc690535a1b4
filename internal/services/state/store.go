package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
	"github.com/kevin07696/subscription-migrator/pkg/observability"
	"github.com/kevin07696/subscription-migrator/pkg/timeutil"
)

// DefaultMaxErrors is the error log capacity when none is configured
const DefaultMaxErrors = 500

// Store is the durable migration state record. Every mutation is a full
// read-merge-write of the document held by the repository.
type Store struct {
	repo      ports.StateRepository
	archive   ports.ErrorArchive
	logger    ports.Logger
	now       func() time.Time
	maxErrors int
	mu        sync.Mutex
}

// NewStore creates a state store. archive may be nil.
func NewStore(repo ports.StateRepository, archive ports.ErrorArchive, logger ports.Logger, maxErrors int) *Store {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return &Store{
		repo:      repo,
		archive:   archive,
		logger:    logger,
		now:       timeutil.Now,
		maxErrors: maxErrors,
	}
}

// Get returns the current state merged over defaults
func (s *Store) Get(ctx context.Context) (*domain.MigrationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (*domain.MigrationState, error) {
	state := domain.DefaultMigrationState()

	doc, err := s.repo.Load(ctx)
	if errors.Is(err, domain.ErrStateNotFound) {
		return state, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStateUnavailable, "failed to load migration state", err)
	}

	// Unmarshalling over the defaults keeps fields missing from older documents at their zero values
	if err := json.Unmarshal(doc, state); err != nil {
		s.logger.Error("migration state document is corrupt, using defaults", ports.Err(err))
		return domain.DefaultMigrationState(), nil
	}
	if state.Status == "" {
		state.Status = domain.MigrationStatusIdle
	}
	if state.Errors == nil {
		state.Errors = []domain.ErrorEntry{}
	}
	return state, nil
}

func (s *Store) save(ctx context.Context, state *domain.MigrationState) error {
	now := s.now()
	state.LastActivity = &now

	doc, err := json.Marshal(state)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "failed to encode migration state", err)
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		return domain.WrapError(domain.ErrorCodeStateUnavailable, "failed to save migration state", err)
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, fn func(state *domain.MigrationState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(ctx)
	if err != nil {
		return err
	}
	fn(state)
	return s.save(ctx, state)
}

// Update merges a partial update into the stored state
func (s *Store) Update(ctx context.Context, patch domain.StatePatch) error {
	return s.mutate(ctx, patch.Apply)
}

// SetStatus changes the status and stamps last_activity
func (s *Store) SetStatus(ctx context.Context, status domain.MigrationStatus) error {
	return s.Update(ctx, domain.StatePatch{Status: &status})
}

// AddProductsProgress adds a batch's counters to the persisted totals
func (s *Store) AddProductsProgress(ctx context.Context, delta domain.ProductsDelta) error {
	return s.mutate(ctx, func(state *domain.MigrationState) {
		p := &state.ProductsMigration
		p.ProcessedProducts += delta.Processed
		p.CreatedPlans += delta.Created
		p.FailedProducts += delta.Failed
		if p.TotalProducts > 0 && p.ProcessedProducts > p.TotalProducts {
			p.ProcessedProducts = p.TotalProducts
		}
		if delta.LastProductID > p.LastProductID {
			p.LastProductID = delta.LastProductID
		}
		p.CurrentBatch++
	})
}

// AddSubscriptionsProgress adds a batch's counters to the persisted totals
func (s *Store) AddSubscriptionsProgress(ctx context.Context, delta domain.SubscriptionsDelta) error {
	return s.mutate(ctx, func(state *domain.MigrationState) {
		p := &state.SubscriptionsMigration
		p.ProcessedSubscriptions += delta.Processed
		p.CreatedSubscriptions += delta.Created
		p.FailedSubscriptions += delta.Failed
		if delta.LastSubscriptionID > p.LastSubscriptionID {
			p.LastSubscriptionID = delta.LastSubscriptionID
		}
		p.CurrentBatch++
	})
}

// AddError appends to the capped error log. It never fails: if the state
// cannot be written the entry is reported through the logger instead.
func (s *Store) AddError(ctx context.Context, message string, errContext map[string]interface{}) {
	if errContext == nil {
		errContext = map[string]interface{}{}
	}
	entry := domain.ErrorEntry{
		Message: message,
		Context: errContext,
		Time:    s.now(),
	}

	var evicted []domain.ErrorEntry
	err := s.mutate(ctx, func(state *domain.MigrationState) {
		state.Errors = append(state.Errors, entry)
		if overflow := len(state.Errors) - s.maxErrors; overflow > 0 {
			evicted = append(evicted, state.Errors[:overflow]...)
			state.Errors = append([]domain.ErrorEntry(nil), state.Errors[overflow:]...)
		}
	})
	if err != nil {
		s.logger.Error("failed to append migration error",
			ports.String("message", message),
			ports.Any("context", errContext),
			ports.Err(err))
		return
	}
	observability.RecordStateError()

	if len(evicted) > 0 && s.archive != nil {
		if err := s.archive.Archive(ctx, evicted); err != nil {
			s.logger.Warn("failed to archive evicted migration errors",
				ports.Int("count", len(evicted)),
				ports.Err(err))
		}
	}
}

// RecentErrors returns up to n of the newest error entries, newest last
func (s *Store) RecentErrors(ctx context.Context, n int) ([]domain.ErrorEntry, error) {
	state, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(state.Errors) {
		return state.Errors, nil
	}
	return state.Errors[len(state.Errors)-n:], nil
}

// Reset deletes the stored record so the next Get returns defaults
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Delete(ctx); err != nil {
		return domain.WrapError(domain.ErrorCodeStateUnavailable, "failed to reset migration state", err)
	}
	return nil
}
