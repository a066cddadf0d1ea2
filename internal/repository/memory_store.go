package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seatwise/seatwise/internal/domain"
)

type memTxKey struct{}

// MemoryStore keeps the full inventory state behind one mutex. It backs the
// single-node storage mode and the service test suites; semantics match the
// Postgres repositories, including conditional transitions and all-or-nothing
// claims. InTx holds the mutex for the whole callback, which makes the
// callback serializable against every other store operation.
type MemoryStore struct {
	mu sync.Mutex

	seats      map[string]*domain.Seat
	categories map[string]*domain.SeatCategory
	events     map[string]*domain.Event
	carts      map[string]*domain.Cart
	cartItems  map[string]*domain.CartItem

	bookings     map[string]*domain.Booking
	bookingItems map[string][]domain.BookingItem

	// queue state: latest entry per (event, user) plus the per-event
	// monotonic position counter. Positions are never reused.
	queueEntries map[string]map[string]*domain.QueueEntry
	queuePos     map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seats:        make(map[string]*domain.Seat),
		categories:   make(map[string]*domain.SeatCategory),
		events:       make(map[string]*domain.Event),
		carts:        make(map[string]*domain.Cart),
		cartItems:    make(map[string]*domain.CartItem),
		bookings:     make(map[string]*domain.Booking),
		bookingItems: make(map[string][]domain.BookingItem),
		queueEntries: make(map[string]map[string]*domain.QueueEntry),
		queuePos:     make(map[string]int64),
	}
}

// enter acquires the store mutex unless ctx already runs inside InTx.
func (s *MemoryStore) enter(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// InTx serializes fn against all other store operations. There is no
// rollback; callers perform every check before the first mutation, which the
// held mutex makes sufficient.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, s))
}

// ---- seats ----

func (s *MemoryStore) CreateBatch(ctx context.Context, seats []*domain.Seat) error {
	defer s.enter(ctx)()
	for _, seat := range seats {
		cp := *seat
		s.seats[seat.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) GetByIDs(ctx context.Context, seatIDs []string) ([]*domain.Seat, error) {
	defer s.enter(ctx)()
	out := make([]*domain.Seat, 0, len(seatIDs))
	for _, id := range seatIDs {
		seat, ok := s.seats[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrSeatNotFound, id)
		}
		cp := *seat
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) ClaimBatch(ctx context.Context, seatIDs []string, holder string, until, now time.Time) error {
	defer s.enter(ctx)()

	for _, id := range seatIDs {
		seat, ok := s.seats[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrSeatNotFound, id)
		}
		if !s.claimable(seat, holder, now) {
			return fmt.Errorf("%w: %s", domain.ErrSeatConflict, id)
		}
	}

	for _, id := range seatIDs {
		seat := s.seats[id]
		seat.Status = domain.SeatStatusLocked
		seat.LockedBy = strPtr(holder)
		seat.LockedUntil = timePtr(until)
		seat.UpdatedAt = now
	}
	return nil
}

// claimable applies the lazy-expiry rule: a locked seat past LockedUntil is
// as available as one that was released.
func (s *MemoryStore) claimable(seat *domain.Seat, holder string, now time.Time) bool {
	switch seat.Status {
	case domain.SeatStatusAvailable:
		return true
	case domain.SeatStatusLocked:
		if seat.LockedUntil == nil || !now.Before(*seat.LockedUntil) {
			return true
		}
		return seat.LockedBy != nil && *seat.LockedBy == holder
	default:
		return false
	}
}

func (s *MemoryStore) Release(ctx context.Context, seatIDs []string, holder string) (int, error) {
	defer s.enter(ctx)()
	released := 0
	for _, id := range seatIDs {
		seat, ok := s.seats[id]
		if !ok {
			continue
		}
		if seat.Status == domain.SeatStatusLocked && seat.LockedBy != nil && *seat.LockedBy == holder {
			s.resetSeat(seat)
			released++
		}
	}
	return released, nil
}

func (s *MemoryStore) Commit(ctx context.Context, seatIDs []string, holder, bookingID string) error {
	defer s.enter(ctx)()

	for _, id := range seatIDs {
		seat, ok := s.seats[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrSeatNotFound, id)
		}
		if seat.Status != domain.SeatStatusLocked || seat.LockedBy == nil || *seat.LockedBy != holder {
			return fmt.Errorf("%w: %s", domain.ErrSeatNotHeld, id)
		}
	}

	now := time.Now()
	for _, id := range seatIDs {
		seat := s.seats[id]
		seat.Status = domain.SeatStatusBooked
		seat.BookingID = strPtr(bookingID)
		seat.LockedBy = nil
		seat.LockedUntil = nil
		seat.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) Uncommit(ctx context.Context, seatIDs []string) (int, error) {
	defer s.enter(ctx)()
	restored := 0
	for _, id := range seatIDs {
		seat, ok := s.seats[id]
		if !ok {
			continue
		}
		if seat.Status == domain.SeatStatusBooked {
			s.resetSeat(seat)
			restored++
		}
	}
	return restored, nil
}

func (s *MemoryStore) AllHeldBy(ctx context.Context, seatIDs []string, holder string, now time.Time) (bool, error) {
	defer s.enter(ctx)()
	for _, id := range seatIDs {
		seat, ok := s.seats[id]
		if !ok || !seat.HeldBy(holder, now) {
			return false, nil
		}
	}
	return true, nil
}

func (s *MemoryStore) ReleaseExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	defer s.enter(ctx)()
	released := 0
	for _, seat := range s.seats {
		if limit > 0 && released >= limit {
			break
		}
		if seat.Status == domain.SeatStatusLocked && seat.LockedUntil != nil && !now.Before(*seat.LockedUntil) {
			s.resetSeat(seat)
			released++
		}
	}
	return released, nil
}

func (s *MemoryStore) resetSeat(seat *domain.Seat) {
	seat.Status = domain.SeatStatusAvailable
	seat.LockedBy = nil
	seat.LockedUntil = nil
	seat.BookingID = nil
	seat.UpdatedAt = time.Now()
}

// ---- categories ----

func (s *MemoryStore) CreateCategory(ctx context.Context, c *domain.SeatCategory) error {
	defer s.enter(ctx)()
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCategory(ctx context.Context, id string) (*domain.SeatCategory, error) {
	defer s.enter(ctx)()
	c, ok := s.categories[id]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCategoriesByEvent(ctx context.Context, eventID string) ([]*domain.SeatCategory, error) {
	defer s.enter(ctx)()
	var out []*domain.SeatCategory
	for _, c := range s.categories {
		if c.EventID == eventID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) DecrementCategoryAvailable(ctx context.Context, id string, qty int) error {
	defer s.enter(ctx)()
	c, ok := s.categories[id]
	if !ok {
		return domain.ErrCategoryNotFound
	}
	if c.AvailableSeats < qty {
		return domain.ErrInsufficientSeats
	}
	c.AvailableSeats -= qty
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) RestoreCategoryAvailable(ctx context.Context, id string, qty int) error {
	defer s.enter(ctx)()
	c, ok := s.categories[id]
	if !ok {
		return domain.ErrCategoryNotFound
	}
	c.AvailableSeats += qty
	if c.AvailableSeats > c.TotalSeats {
		c.AvailableSeats = c.TotalSeats
	}
	c.UpdatedAt = time.Now()
	return nil
}

// ---- events ----

func (s *MemoryStore) CreateEvent(ctx context.Context, e *domain.Event) error {
	defer s.enter(ctx)()
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	defer s.enter(ctx)()
	e, ok := s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) DecrementEventAvailable(ctx context.Context, id string, qty int) error {
	defer s.enter(ctx)()
	e, ok := s.events[id]
	if !ok {
		return domain.ErrEventNotFound
	}
	if e.AvailableSeats < qty {
		return domain.ErrInsufficientSeats
	}
	e.AvailableSeats -= qty
	e.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) RestoreEventAvailable(ctx context.Context, id string, qty int) error {
	defer s.enter(ctx)()
	e, ok := s.events[id]
	if !ok {
		return domain.ErrEventNotFound
	}
	e.AvailableSeats += qty
	if e.AvailableSeats > e.TotalSeats {
		e.AvailableSeats = e.TotalSeats
	}
	e.UpdatedAt = time.Now()
	return nil
}

// ---- carts ----

func (s *MemoryStore) CreateCart(ctx context.Context, cart *domain.Cart) error {
	defer s.enter(ctx)()
	for _, existing := range s.carts {
		if existing.UserID == cart.UserID && existing.EventID == cart.EventID &&
			existing.Status == domain.CartStatusActive {
			return domain.ErrCartAlreadyActive
		}
	}
	cp := *cart
	s.carts[cart.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	defer s.enter(ctx)()
	c, ok := s.carts[id]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetActiveCartByUserAndEvent(ctx context.Context, userID, eventID string) (*domain.Cart, error) {
	defer s.enter(ctx)()
	for _, c := range s.carts {
		if c.UserID == userID && c.EventID == eventID && c.Status == domain.CartStatusActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetCartWithItems(ctx context.Context, cartID string) (*domain.CartWithItems, error) {
	defer s.enter(ctx)()
	c, ok := s.carts[cartID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	agg := &domain.CartWithItems{Cart: *c}
	for _, item := range s.cartItems {
		if item.CartID == cartID {
			agg.Items = append(agg.Items, *cloneItem(item))
		}
	}
	sort.Slice(agg.Items, func(i, j int) bool {
		if agg.Items[i].CreatedAt.Equal(agg.Items[j].CreatedAt) {
			return agg.Items[i].ID < agg.Items[j].ID
		}
		return agg.Items[i].CreatedAt.Before(agg.Items[j].CreatedAt)
	})
	return agg, nil
}

func (s *MemoryStore) UpdateCartStatus(ctx context.Context, cartID string, from, to domain.CartStatus) error {
	defer s.enter(ctx)()
	c, ok := s.carts[cartID]
	if !ok {
		return domain.ErrCartNotFound
	}
	if c.Status != from {
		return domain.ErrCartNotActive
	}
	c.Status = to
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) TouchCart(ctx context.Context, cartID string, expiresAt time.Time) error {
	defer s.enter(ctx)()
	c, ok := s.carts[cartID]
	if !ok {
		return domain.ErrCartNotFound
	}
	c.ExpiresAt = expiresAt
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AddCartItem(ctx context.Context, item *domain.CartItem) error {
	defer s.enter(ctx)()
	for _, existing := range s.cartItems {
		if existing.CartID == item.CartID && existing.CategoryID == item.CategoryID {
			return domain.ErrDuplicateCategoryItem
		}
	}
	s.cartItems[item.ID] = cloneItem(item)
	return nil
}

func (s *MemoryStore) GetCartItem(ctx context.Context, itemID string) (*domain.CartItem, error) {
	defer s.enter(ctx)()
	item, ok := s.cartItems[itemID]
	if !ok {
		return nil, domain.ErrCartItemNotFound
	}
	return cloneItem(item), nil
}

func (s *MemoryStore) UpdateCartItemQuantity(ctx context.Context, itemID string, qty int, lockedUntil time.Time) error {
	defer s.enter(ctx)()
	item, ok := s.cartItems[itemID]
	if !ok {
		return domain.ErrCartItemNotFound
	}
	item.Quantity = qty
	item.LockedUntil = lockedUntil
	return nil
}

func (s *MemoryStore) RemoveCartItem(ctx context.Context, itemID string) error {
	defer s.enter(ctx)()
	if _, ok := s.cartItems[itemID]; !ok {
		return domain.ErrCartItemNotFound
	}
	delete(s.cartItems, itemID)
	return nil
}

func (s *MemoryStore) ListExpiredActiveCarts(ctx context.Context, now time.Time, limit int) ([]*domain.Cart, error) {
	defer s.enter(ctx)()
	var out []*domain.Cart
	for _, c := range s.carts {
		if c.Status == domain.CartStatusActive && c.Expired(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- bookings ----

func (s *MemoryStore) CreateBooking(ctx context.Context, b *domain.Booking, items []*domain.BookingItem) error {
	defer s.enter(ctx)()
	cp := *b
	s.bookings[b.ID] = &cp
	snapshot := make([]domain.BookingItem, len(items))
	for i, item := range items {
		snapshot[i] = *item
	}
	s.bookingItems[b.ID] = snapshot
	return nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, id string) (*domain.BookingWithItems, error) {
	defer s.enter(ctx)()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return s.bookingAggregate(b), nil
}

func (s *MemoryStore) GetBookingByGatewayOrderID(ctx context.Context, orderID string) (*domain.BookingWithItems, error) {
	defer s.enter(ctx)()
	for _, b := range s.bookings {
		if b.GatewayOrderID == orderID && orderID != "" {
			return s.bookingAggregate(b), nil
		}
	}
	return nil, domain.ErrBookingNotFound
}

func (s *MemoryStore) ListBookingsByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	defer s.enter(ctx)()
	var out []*domain.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateBookingStatus(ctx context.Context, id string, from, to domain.BookingStatus, reason string) error {
	defer s.enter(ctx)()
	b, ok := s.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	if b.Status != from {
		return domain.ErrBookingNotPending
	}
	now := time.Now()
	b.Status = to
	b.StatusReason = reason
	b.UpdatedAt = now
	switch to {
	case domain.BookingStatusConfirmed:
		b.ConfirmedAt = timePtr(now)
	case domain.BookingStatusCancelled, domain.BookingStatusFailed:
		b.CancelledAt = timePtr(now)
	}
	return nil
}

func (s *MemoryStore) SetGatewayOrderID(ctx context.Context, id, orderID string) error {
	defer s.enter(ctx)()
	b, ok := s.bookings[id]
	if !ok {
		return domain.ErrBookingNotFound
	}
	b.GatewayOrderID = orderID
	b.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkReversed(ctx context.Context, id string) (bool, error) {
	defer s.enter(ctx)()
	b, ok := s.bookings[id]
	if !ok {
		return false, domain.ErrBookingNotFound
	}
	if b.Reversed {
		return false, nil
	}
	b.Reversed = true
	b.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) CountSoldByCategory(ctx context.Context, categoryID string) (int, error) {
	defer s.enter(ctx)()
	count := 0
	for id, b := range s.bookings {
		if !b.CountsAsSold() {
			continue
		}
		for _, item := range s.bookingItems[id] {
			if item.CategoryID == categoryID {
				count++
			}
		}
	}
	return count, nil
}

func (s *MemoryStore) bookingAggregate(b *domain.Booking) *domain.BookingWithItems {
	agg := &domain.BookingWithItems{Booking: *b}
	agg.Items = append(agg.Items, s.bookingItems[b.ID]...)
	return agg
}

// ---- queue ----

func (s *MemoryStore) Join(ctx context.Context, eventID, userID string, now time.Time) (*domain.QueueEntry, bool, error) {
	defer s.enter(ctx)()

	byUser := s.queueEntries[eventID]
	if byUser == nil {
		byUser = make(map[string]*domain.QueueEntry)
		s.queueEntries[eventID] = byUser
	}
	if existing, ok := byUser[userID]; ok && existing.Active() {
		cp := *existing
		return &cp, false, nil
	}

	s.queuePos[eventID]++
	entry := &domain.QueueEntry{
		ID:        uuid.NewString(),
		EventID:   eventID,
		UserID:    userID,
		Position:  s.queuePos[eventID],
		Status:    domain.QueueStatusWaiting,
		JoinedAt:  now,
		UpdatedAt: now,
	}
	byUser[userID] = entry
	cp := *entry
	return &cp, true, nil
}

func (s *MemoryStore) Get(ctx context.Context, eventID, userID string) (*domain.QueueEntry, error) {
	defer s.enter(ctx)()
	entry, ok := s.queueEntries[eventID][userID]
	if !ok {
		return nil, domain.ErrQueueEntryNotFound
	}
	cp := *entry
	return &cp, nil
}

func (s *MemoryStore) CountWaitingAhead(ctx context.Context, eventID string, position int64) (int64, error) {
	defer s.enter(ctx)()
	var ahead int64
	for _, entry := range s.queueEntries[eventID] {
		if entry.Status == domain.QueueStatusWaiting && entry.Position < position {
			ahead++
		}
	}
	return ahead, nil
}

func (s *MemoryStore) Tick(ctx context.Context, eventID string, batchSize int, window time.Duration, now time.Time) (*TickResult, error) {
	defer s.enter(ctx)()

	result := &TickResult{}
	inFlight := 0
	var waiting []*domain.QueueEntry

	for _, entry := range s.queueEntries[eventID] {
		switch entry.Status {
		case domain.QueueStatusProcessing:
			if entry.ExpiresAt != nil && !now.Before(*entry.ExpiresAt) {
				entry.Status = domain.QueueStatusExpired
				entry.UpdatedAt = now
				cp := *entry
				result.Expired = append(result.Expired, &cp)
			} else {
				inFlight++
			}
		case domain.QueueStatusWaiting:
			waiting = append(waiting, entry)
		}
	}

	slots := batchSize - inFlight
	if slots <= 0 || len(waiting) == 0 {
		return result, nil
	}

	// promotion strictly follows position order
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].Position < waiting[j].Position })
	if len(waiting) > slots {
		waiting = waiting[:slots]
	}
	deadline := now.Add(window)
	for _, entry := range waiting {
		entry.Status = domain.QueueStatusProcessing
		entry.ExpiresAt = timePtr(deadline)
		entry.UpdatedAt = now
		cp := *entry
		result.Promoted = append(result.Promoted, &cp)
	}
	return result, nil
}

func (s *MemoryStore) Leave(ctx context.Context, eventID, userID string) (*domain.QueueEntry, error) {
	defer s.enter(ctx)()
	entry, ok := s.queueEntries[eventID][userID]
	if !ok || !entry.Active() {
		return nil, domain.ErrQueueEntryNotFound
	}
	entry.Status = domain.QueueStatusLeft
	entry.UpdatedAt = time.Now()
	cp := *entry
	return &cp, nil
}

func (s *MemoryStore) Complete(ctx context.Context, eventID, userID string) error {
	defer s.enter(ctx)()
	entry, ok := s.queueEntries[eventID][userID]
	if !ok || entry.Status != domain.QueueStatusProcessing {
		return domain.ErrQueueEntryNotFound
	}
	entry.Status = domain.QueueStatusCompleted
	entry.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ActiveEventIDs(ctx context.Context) ([]string, error) {
	defer s.enter(ctx)()
	var out []string
	for eventID, byUser := range s.queueEntries {
		for _, entry := range byUser {
			if entry.Active() {
				out = append(out, eventID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func cloneItem(item *domain.CartItem) *domain.CartItem {
	cp := *item
	cp.SeatIDs = append([]string(nil), item.SeatIDs...)
	return &cp
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
