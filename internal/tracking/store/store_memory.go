package store

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"proctrack/internal/tracking/models"
	id "proctrack/pkg/domain"
	"proctrack/pkg/platform/sentinel"
)

// InMemory keeps transactions and their ledger in maps. Row locking is the
// caller's TxRunner's job; FindByIDForUpdate behaves like FindByID.
type InMemory struct {
	mu      sync.RWMutex
	txns    map[id.TransactionID]*models.Transaction
	refs    map[string]id.TransactionID
	actions map[id.TransactionID][]*models.Action
}

func NewInMemory() *InMemory {
	return &InMemory{
		txns:    make(map[id.TransactionID]*models.Transaction),
		refs:    make(map[string]id.TransactionID),
		actions: make(map[id.TransactionID][]*models.Action),
	}
}

func (s *InMemory) Create(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[txn.ID]; ok {
		return fmt.Errorf("transaction %s: %w", txn.ID, sentinel.ErrConflict)
	}
	if _, ok := s.refs[txn.ReferenceNumber]; ok {
		return fmt.Errorf("reference number %s: %w", txn.ReferenceNumber, sentinel.ErrConflict)
	}
	s.txns[txn.ID] = txn.Clone()
	s.refs[txn.ReferenceNumber] = txn.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, txnID id.TransactionID) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txn, ok := s.txns[txnID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return txn.Clone(), nil
}

func (s *InMemory) FindByIDForUpdate(ctx context.Context, txnID id.TransactionID) (*models.Transaction, error) {
	return s.FindByID(ctx, txnID)
}

func (s *InMemory) FindByReference(_ context.Context, ref string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txnID, ok := s.refs[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.txns[txnID].Clone(), nil
}

func (s *InMemory) Update(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[txn.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.txns[txn.ID] = txn.Clone()
	return nil
}

func (s *InMemory) Append(_ context.Context, action *models.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txns[action.TransactionID]; !ok {
		return fmt.Errorf("action for unknown transaction %s: %w", action.TransactionID, sentinel.ErrNotFound)
	}
	a := *action
	s.actions[action.TransactionID] = append(s.actions[action.TransactionID], &a)
	return nil
}

func (s *InMemory) ListByTransaction(_ context.Context, txnID id.TransactionID) ([]*models.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.actions[txnID]
	out := make([]*models.Action, 0, len(stored))
	for _, a := range stored {
		c := *a
		out = append(out, &c)
	}
	return out, nil
}

// LatestEndorseDestination returns the destination of the most recent
// endorsement of txnID, nil when it was never endorsed.
func (s *InMemory) LatestEndorseDestination(_ context.Context, txnID id.TransactionID) (*id.OfficeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.actions[txnID]
	for i := len(stored) - 1; i >= 0; i-- {
		a := stored[i]
		if a.Type == models.ActionEndorse && a.ToOfficeID != nil {
			office := *a.ToOfficeID
			return &office, nil
		}
	}
	return nil, nil
}

// ListOverdueCandidates returns In Progress transactions on a known step
// that were never flagged overdue, or last flagged before notifiedBefore.
func (s *InMemory) ListOverdueCandidates(_ context.Context, notifiedBefore time.Time, after id.TransactionID, limit int) ([]*models.Transaction, error) {
	return s.page(after, limit, func(t *models.Transaction) bool {
		if t.Status != models.StatusInProgress || t.CurrentStepID == nil {
			return false
		}
		return t.LastOverdueNotifiedAt == nil || t.LastOverdueNotifiedAt.Before(notifiedBefore)
	}), nil
}

// ListLegacyWithoutOffice returns legacy transactions whose location is unknown.
func (s *InMemory) ListLegacyWithoutOffice(_ context.Context, after id.TransactionID, limit int) ([]*models.Transaction, error) {
	return s.page(after, limit, func(t *models.Transaction) bool {
		return t.IsLegacy && t.CurrentOfficeID == nil
	}), nil
}

// ListWithoutWorkflow returns transactions never bound to a workflow.
func (s *InMemory) ListWithoutWorkflow(_ context.Context, after id.TransactionID, limit int) ([]*models.Transaction, error) {
	return s.page(after, limit, func(t *models.Transaction) bool {
		return t.WorkflowID == nil
	}), nil
}

// page returns matching transactions ordered by id, strictly after the
// cursor, mirroring the keyset pagination of the postgres store.
func (s *InMemory) page(after id.TransactionID, limit int, match func(*models.Transaction) bool) []*models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Transaction, 0)
	for txnID, t := range s.txns {
		if !after.IsNil() && compareIDs(txnID, after) <= 0 {
			continue
		}
		if match(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return compareIDs(out[i].ID, out[j].ID) < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func compareIDs(a, b id.TransactionID) int {
	ua, ub := uuid.UUID(a), uuid.UUID(b)
	return bytes.Compare(ua[:], ub[:])
}
