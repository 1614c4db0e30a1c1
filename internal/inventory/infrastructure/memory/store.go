// Package memory holds an in-process ReservationStore used by unit tests and
// broker-less local runs. Admission control mirrors the postgres store: one
// lock per product, acquired in sorted product order for multi-item batches.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orderflow/orderflow/internal/inventory/domain"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]*domain.Product
	reservations map[string]*domain.StockReservation
	byOrder      map[string][]string

	arenaMu sync.Mutex
	arena   map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		products:     make(map[string]*domain.Product),
		reservations: make(map[string]*domain.StockReservation),
		byOrder:      make(map[string][]string),
		arena:        make(map[string]*sync.Mutex),
	}
}

// AddProduct seeds a catalog row.
func (s *Store) AddProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
}

// productLock returns the arena mutex for one product, creating it lazily.
func (s *Store) productLock(productID string) *sync.Mutex {
	s.arenaMu.Lock()
	defer s.arenaMu.Unlock()
	l, ok := s.arena[productID]
	if !ok {
		l = &sync.Mutex{}
		s.arena[productID] = l
	}
	return l
}

func (s *Store) ReserveBatch(ctx context.Context, reservations []domain.StockReservation) ([]domain.ItemOutcome, error) {
	orderID := reservations[0].OrderID

	sorted := make([]domain.StockReservation, len(reservations))
	copy(sorted, reservations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	// Stable acquisition order across concurrent batches prevents deadlock.
	locks := make([]*sync.Mutex, 0, len(sorted))
	for _, res := range sorted {
		locks = append(locks, s.productLock(res.ProductID))
	}
	for _, l := range locks {
		l.Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Any prior batch for the order conflicts, whatever its status; a row is
	// never recreated once it reached a terminal state.
	if len(s.byOrder[orderID]) > 0 {
		return nil, domain.ErrReservationConflict
	}

	admitted := true
	outcomeByProduct := make(map[string]domain.ItemOutcome, len(sorted))
	for _, res := range sorted {
		outcome := domain.ItemOutcome{ProductID: res.ProductID, Requested: res.Quantity, ReservationID: res.ID}
		p, ok := s.products[res.ProductID]
		if !ok {
			outcome.Reason = domain.ErrProductNotFound
			admitted = false
			outcomeByProduct[res.ProductID] = outcome
			continue
		}
		outcome.AvailableStock = p.Available(s.reservedSumLocked(res.ProductID))
		if res.Quantity > outcome.AvailableStock {
			outcome.Reason = domain.ErrInsufficientStock
			admitted = false
		} else {
			outcome.OK = true
			outcome.AvailableStock -= res.Quantity
		}
		outcomeByProduct[res.ProductID] = outcome
	}

	if admitted {
		for _, res := range sorted {
			cp := res
			cp.ProductName = s.products[res.ProductID].Name
			s.reservations[cp.ID] = &cp
			s.byOrder[orderID] = append(s.byOrder[orderID], cp.ID)
		}
	}

	outcomes := make([]domain.ItemOutcome, 0, len(reservations))
	for _, res := range reservations {
		o := outcomeByProduct[res.ProductID]
		if !admitted {
			o.OK = false
			o.ReservationID = ""
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func (s *Store) reservedSumLocked(productID string) int {
	sum := 0
	for _, res := range s.reservations {
		if res.ProductID == productID && res.Status == domain.StatusReserved {
			sum += res.Quantity
		}
	}
	return sum
}

func (s *Store) GetByOrder(ctx context.Context, orderID string) ([]domain.StockReservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StockReservation, 0, len(s.byOrder[orderID]))
	for _, id := range s.byOrder[orderID] {
		out = append(out, *s.reservations[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.StockReservation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.reservations[id]
	if !ok {
		return domain.StockReservation{}, false, nil
	}
	return *res, true, nil
}

func (s *Store) MarkDebited(ctx context.Context, orderID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.byOrder[orderID] {
		res := s.reservations[id]
		if res.Debit(now) {
			s.products[res.ProductID].Stock -= res.Quantity
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkReleased(ctx context.Context, orderID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.byOrder[orderID] {
		if s.reservations[id].Release(now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, false, nil
	}
	return *p, true, nil
}

// ReservedSum reports the currently held quantity for a product; tests use it
// to check the no-oversell invariant.
func (s *Store) ReservedSum(productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservedSumLocked(productID)
}
