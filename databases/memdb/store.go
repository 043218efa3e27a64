// Package memdb is an in-memory implementation of the database interfaces. It keeps the same
// conditional-update semantics as the mongo collections and backs local runs and tests.
package memdb

import (
	"context"
	"sort"
	"sync"

	"github.com/linesmerrill/benefits-access-api/databases"
	"github.com/linesmerrill/benefits-access-api/models"
)

type txKey struct{}

type tx struct {
	undo []func()
}

func txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

// Store holds every collection in memory. Transactions are serialized and rolled back from an undo
// log; operations outside a transaction are serialized against them.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	codes        map[string]models.AccessCode
	companies    map[string]models.Company
	employees    map[string]models.Employee
	consumptions map[string]models.SessionConsumption
	topUps       map[string]models.AllocationTopUp
	issuers      map[string]models.Issuer
	locks        map[string]models.SchedulerLock

	failures int
}

// New returns an empty store
func New() *Store {
	return &Store{
		codes:        map[string]models.AccessCode{},
		companies:    map[string]models.Company{},
		employees:    map[string]models.Employee{},
		consumptions: map[string]models.SessionConsumption{},
		topUps:       map[string]models.AllocationTopUp{},
		issuers:      map[string]models.Issuer{},
		locks:        map[string]models.SchedulerLock{},
	}
}

// FailNext makes the next n operations fail with databases.ErrUnavailable
func (s *Store) FailNext(n int) {
	s.mu.Lock()
	s.failures = n
	s.mu.Unlock()
}

// WithTransaction runs fn with every other operation on the store held off. If fn returns an error
// its writes are undone. A nested call joins the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{}
	err := fn(context.WithValue(ctx, txKey{}, t))
	if err != nil {
		s.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		s.mu.Unlock()
	}
	return err
}

// begin locks the store for one operation and reports an injected failure, if any is pending
func (s *Store) begin(ctx context.Context) (func(), error) {
	unlock := s.mu.Unlock
	if txFrom(ctx) == nil {
		s.txMu.Lock()
		unlock = func() {
			s.mu.Unlock()
			s.txMu.Unlock()
		}
	}
	s.mu.Lock()

	if err := ctx.Err(); err != nil {
		unlock()
		return nil, err
	}
	if s.failures > 0 {
		s.failures--
		unlock()
		return nil, databases.ErrUnavailable
	}
	return unlock, nil
}

// record remembers the current value of m[id] so a failed transaction can restore it. Callers hold mu.
func record[T any](ctx context.Context, m map[string]T, id string) {
	t := txFrom(ctx)
	if t == nil {
		return
	}
	prev, existed := m[id]
	t.undo = append(t.undo, func() {
		if existed {
			m[id] = prev
		} else {
			delete(m, id)
		}
	})
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// paginate applies the same clamping as the mongo pagination options
func paginate[T any](items []T, limit, page int) []T {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func sortedValues[T any](m map[string]T, keep func(T) bool, less func(a, b T) bool) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// AccessCodes returns the access code collection
func (s *Store) AccessCodes() databases.AccessCodeDatabase { return &accessCodes{s: s} }

// Companies returns the company collection
func (s *Store) Companies() databases.CompanyDatabase { return &companies{s: s} }

// Employees returns the employee collection
func (s *Store) Employees() databases.EmployeeDatabase { return &employees{s: s} }

// SessionConsumptions returns the session consumption collection
func (s *Store) SessionConsumptions() databases.SessionConsumptionDatabase {
	return &consumptions{s: s}
}

// TopUps returns the allocation top-up collection
func (s *Store) TopUps() databases.TopUpDatabase { return &topUps{s: s} }

// Issuers returns the issuer collection
func (s *Store) Issuers() databases.IssuerDatabase { return &issuers{s: s} }

// SchedulerLocks returns the scheduler lock collection
func (s *Store) SchedulerLocks() databases.SchedulerLockDatabase { return &locks{s: s} }
