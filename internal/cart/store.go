package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"FoodCart/internal/kv"
)

const defaultPersistTimeout = 2 * time.Second

// Store owns the session's cart. Every accepted mutation is written through
// to the key-value store and then published to subscribers. Storage
// failures are logged and never returned; the in-memory cart stays
// authoritative.
type Store struct {
	kv             kv.Store
	log            *zap.Logger
	persistTimeout time.Duration
	newID          func() string

	// opMu serializes mutations together with their persistence and event
	// dispatch, so events are observed in invocation order.
	opMu sync.Mutex

	mu    sync.RWMutex
	items []LineItem

	lmu     sync.Mutex
	subs    []subscription
	nextSub int
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithIDGenerator overrides how cart item ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:             store,
		log:            zap.NewNop(),
		persistTimeout: defaultPersistTimeout,
		newID:          newCartItemID,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// newCartItemID returns a time-ordered id. UUIDv7 falls back to v4 only if
// the random source fails.
func newCartItemID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "ci_" + uuid.NewString()
	}
	return "ci_" + id.String()
}

// Initialize loads the persisted snapshot. A missing, unreadable or
// malformed snapshot yields an empty cart.
func (s *Store) Initialize() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	items := s.load()

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

func (s *Store) load() []LineItem {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	raw, ok, err := s.kv.Get(ctx, kv.KeyCart)
	if err != nil {
		s.log.Warn("cart snapshot read failed", zap.Error(err))
		return []LineItem{}
	}
	if !ok {
		return []LineItem{}
	}

	var items []LineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.log.Warn("cart snapshot corrupt, starting empty", zap.Error(err))
		return []LineItem{}
	}
	if err := validateSnapshot(items); err != nil {
		s.log.Warn("cart snapshot malformed, starting empty", zap.Error(err))
		return []LineItem{}
	}
	if items == nil {
		items = []LineItem{}
	}
	return items
}

// AddItem adds qty units of p with the given options. If a line with the
// same product and structurally equal options exists, its quantity grows and
// no new line is created. Invalid arguments leave the cart untouched.
func (s *Store) AddItem(p Product, qty int, opts Options) (LineItem, error) {
	if qty < 1 {
		return LineItem{}, ErrInvalidQuantity
	}
	if err := p.validate(); err != nil {
		return LineItem{}, err
	}
	key, err := opts.canonical()
	if err != nil {
		return LineItem{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	owned, err := opts.normalize()
	if err != nil {
		return LineItem{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	idx := s.indexOf(p.ID, key)

	if s.units() > math.MaxInt-qty {
		s.mu.Unlock()
		return LineItem{}, ErrInvalidQuantity
	}

	var it LineItem
	if idx >= 0 {
		s.items[idx].Quantity += qty
		it = s.items[idx].clone()
	} else {
		it = LineItem{
			CartItemID: s.newID(),
			ProductID:  p.ID,
			Name:       p.Name,
			Price:      p.Price,
			Image:      p.Image,
			Quantity:   qty,
			Options:    owned,
		}
		s.items = append(s.items, it.clone())
	}
	snap := cloneItems(s.items)
	s.mu.Unlock()

	s.persist(snap)
	s.publish(Event{Kind: EventItemAdded, Item: it, Quantity: qty, Merged: idx >= 0})
	return it, nil
}

// RemoveItem deletes the line with the given id. It reports false, and does
// nothing else, when no such line exists.
func (s *Store) RemoveItem(cartItemID string) bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	idx := s.indexByID(cartItemID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	removed := s.items[idx]
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	snap := cloneItems(s.items)
	s.mu.Unlock()

	s.persist(snap)
	s.publish(Event{Kind: EventItemRemoved, Item: removed, Quantity: removed.Quantity})
	return true
}

// UpdateQuantity sets an absolute quantity and reports whether it did.
// Quantities below 1 are refused and leave the line unchanged; deleting a
// line takes an explicit RemoveItem.
func (s *Store) UpdateQuantity(cartItemID string, qty int) bool {
	return s.SetQuantity(cartItemID, qty) == nil
}

// SetQuantity is UpdateQuantity with the reason for a refusal:
// ErrItemNotFound for an unknown id, ErrInvalidQuantity for qty < 1 or for a
// quantity that would overflow the cart's unit total.
func (s *Store) SetQuantity(cartItemID string, qty int) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	idx := s.indexByID(cartItemID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	if qty < 1 || s.units()-s.items[idx].Quantity > math.MaxInt-qty {
		s.mu.Unlock()
		return ErrInvalidQuantity
	}
	s.items[idx].Quantity = qty
	it := s.items[idx].clone()
	snap := cloneItems(s.items)
	s.mu.Unlock()

	s.persist(snap)
	s.publish(Event{Kind: EventQuantityUpdated, Item: it, Quantity: qty})
	return nil
}

// Clear empties the cart and deletes the persisted snapshot.
func (s *Store) Clear() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.items = []LineItem{}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.kv.Remove(ctx, kv.KeyCart); err != nil {
		s.log.Warn("cart snapshot remove failed", zap.Error(err))
	}

	s.publish(Event{Kind: EventCleared})
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.items)
}

func (s *Store) Item(cartItemID string) (LineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexByID(cartItemID)
	if idx < 0 {
		return LineItem{}, false
	}
	return s.items[idx].clone(), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// TotalPrice is recomputed from the current lines on every call.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// TotalQuantity is the number of units across all lines. Mutations keep it
// from overflowing int.
func (s *Store) TotalQuantity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.units()
}

// units sums line quantities. Caller holds mu.
func (s *Store) units() int {
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// indexOf finds the line for a product/options pair. Caller holds mu.
func (s *Store) indexOf(productID, optionsKey string) int {
	for i, it := range s.items {
		if it.ProductID != productID {
			continue
		}
		if k, err := it.Options.canonical(); err == nil && k == optionsKey {
			return i
		}
	}
	return -1
}

func (s *Store) indexByID(cartItemID string) int {
	for i, it := range s.items {
		if it.CartItemID == cartItemID {
			return i
		}
	}
	return -1
}

func (s *Store) persist(items []LineItem) {
	b, err := json.Marshal(items)
	if err != nil {
		s.log.Warn("cart snapshot encode failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	if err := s.kv.Set(ctx, kv.KeyCart, string(b)); err != nil {
		s.log.Warn("cart snapshot write failed",
			zap.Error(err),
			zap.Int("lines", len(items)),
			zap.Int("bytes", len(b)),
		)
	}
}
