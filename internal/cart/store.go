package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/money"
)

// Options configures a Store.
type Options struct {
	Lookup ProductLookup
	Logger *logger.Logger
	Now    func() time.Time
	NewID  func() string
}

// Store owns one shopper's cart. Every mutation writes the full line
// sequence back to Storage; a failed write leaves the in-memory cart as it
// was before the mutation.
type Store struct {
	mu       sync.Mutex
	storage  Storage
	lines    []Line
	customer string
	logg     *logger.Logger
	now      func() time.Time
	newID    func() string
}

// Open loads the cart from storage. Absent data yields an empty cart, corrupt
// data is logged and replaced by an empty cart, and legacy entries are
// migrated and written back immediately.
func Open(ctx context.Context, storage Storage, opts Options) (*Store, error) {
	if storage == nil {
		return nil, fmt.Errorf("cart storage required")
	}
	s := &Store{
		storage: storage,
		lines:   []Line{},
		logg:    opts.Logger,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}

	raw, err := storage.Load(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, nil
	}

	dec := decoder{lookup: opts.Lookup, logg: s.logg, now: s.now()}
	lines, migrated, err := dec.decode(ctx, raw)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart storage unreadable; starting with an empty cart")
		return s, nil
	}
	s.lines = lines

	if migrated {
		if err := s.persistLocked(ctx); err != nil {
			return nil, err
		}
		s.logg.Info(s.logg.WithField(ctx, "lines", len(lines)), "cart migrated to current format")
	}
	return s, nil
}

// AddItem merges a plain product into its existing line or appends a new
// line. Any non-empty selection list always creates a new, uniquely
// identified line.
func (s *Store) AddItem(ctx context.Context, product Product, quantity int, selections []Selection) (Line, error) {
	if strings.TrimSpace(product.ID) == "" {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if product.Price.IsNegative() {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "product price must not be negative")
	}
	if !money.WholeCents(product.Price) {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "product price must be a whole number of cents")
	}
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.copyLinesLocked()
	now := s.now()

	if len(selections) == 0 {
		if idx := findPlain(s.lines, product.ID, product.VariantID); idx >= 0 {
			s.lines[idx].Quantity += quantity
			s.lines[idx].UpdatedAt = now
			line := s.lines[idx].clone()
			if err := s.commitLocked(ctx, prev); err != nil {
				return Line{}, err
			}
			return line, nil
		}
	}

	id := lineID(product.ID, product.VariantID)
	if len(selections) > 0 {
		id = id + "-" + s.newID()
	}
	line := Line{
		ID:         id,
		CustomerID: s.customerLocked(),
		ProductID:  product.ID,
		VariantID:  product.VariantID,
		Quantity:   quantity,
		Selections: append([]Selection{}, selections...),
		CreatedAt:  now,
		UpdatedAt:  now,
		Product:    snapshotOf(product),
	}
	s.lines = append(s.lines, line)
	if err := s.commitLocked(ctx, prev); err != nil {
		return Line{}, err
	}
	return line.clone(), nil
}

// AddCustomizedItem flattens the customization into selections and adds the
// product at the externally computed price.
func (s *Store) AddCustomizedItem(ctx context.Context, product Product, customization Customization, computedPrice decimal.Decimal) (Line, error) {
	selections := customization.Selections()
	if len(selections) == 0 {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "customization has no selections")
	}
	if computedPrice.IsNegative() {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "computed price must not be negative")
	}
	product.Price = computedPrice
	return s.AddItem(ctx, product, 1, selections)
}

// RemoveItem deletes the line; unknown ids are ignored.
func (s *Store) RemoveItem(ctx context.Context, lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, lineID)
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or below
// removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		return s.removeLocked(ctx, lineID)
	}
	idx := s.indexLocked(lineID)
	if idx < 0 {
		return nil
	}
	prev := s.copyLinesLocked()
	s.lines[idx].Quantity = quantity
	s.lines[idx].UpdatedAt = s.now()
	return s.commitLocked(ctx, prev)
}

// Clear empties the cart. Checkout calls it only after an order commits.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.copyLinesLocked()
	s.lines = []Line{}
	return s.commitLocked(ctx, prev)
}

// SetCustomer assigns guest lines to an authenticated customer.
func (s *Store) SetCustomer(ctx context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.customer = customerID
	prev := s.copyLinesLocked()
	changed := false
	for i := range s.lines {
		if s.lines[i].CustomerID == GuestCustomer || s.lines[i].CustomerID == "" {
			s.lines[i].CustomerID = customerID
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.commitLocked(ctx, prev)
}

// Lines returns a copy of the current lines.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLinesLocked()
}

// Summary recomputes the cart summary with zero adjustments.
func (s *Store) Summary() Summary {
	return s.SummaryWith(Adjustments{})
}

// SummaryWith recomputes the cart summary with externally supplied amounts.
func (s *Store) SummaryWith(adj Adjustments) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summarize(s.lines, adj)
}

func (s *Store) removeLocked(ctx context.Context, lineID string) error {
	idx := s.indexLocked(lineID)
	if idx < 0 {
		return nil
	}
	prev := s.copyLinesLocked()
	s.lines = append(s.lines[:idx:idx], s.lines[idx+1:]...)
	return s.commitLocked(ctx, prev)
}

func (s *Store) commitLocked(ctx context.Context, prev []Line) error {
	if err := s.persistLocked(ctx); err != nil {
		s.lines = prev
		return err
	}
	return nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	lines := s.lines
	if lines == nil {
		lines = []Line{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
	}
	if err := s.storage.Save(ctx, data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return nil
}

func (s *Store) indexLocked(lineID string) int {
	for i, line := range s.lines {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}

func (s *Store) copyLinesLocked() []Line {
	out := make([]Line, len(s.lines))
	for i, line := range s.lines {
		out[i] = line.clone()
	}
	return out
}

// customerLocked returns the shopper set by SetCustomer, or the customer
// already attached to the cart, so new lines match the existing ones.
func (s *Store) customerLocked() string {
	if s.customer != "" {
		return s.customer
	}
	for _, line := range s.lines {
		if line.CustomerID != "" && line.CustomerID != GuestCustomer {
			return line.CustomerID
		}
	}
	return GuestCustomer
}

func findPlain(lines []Line, productID, variantID string) int {
	for i, line := range lines {
		if line.ProductID == productID && line.VariantID == variantID && !line.Customized() {
			return i
		}
	}
	return -1
}

func lineID(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + ":" + variantID
}
