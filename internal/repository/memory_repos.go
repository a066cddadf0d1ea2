package repository

import (
	"context"
	"time"

	"github.com/seatwise/seatwise/internal/domain"
)

// The memory store exposes entity-prefixed methods so everything can live on
// one struct; these adapters map them onto the repository interfaces. The
// store itself already satisfies TxManager, SeatRepository and
// QueueRepository.

type MemoryCategoryRepository struct{ store *MemoryStore }

func NewMemoryCategoryRepository(store *MemoryStore) *MemoryCategoryRepository {
	return &MemoryCategoryRepository{store: store}
}

func (r *MemoryCategoryRepository) Create(ctx context.Context, c *domain.SeatCategory) error {
	return r.store.CreateCategory(ctx, c)
}

func (r *MemoryCategoryRepository) GetByID(ctx context.Context, id string) (*domain.SeatCategory, error) {
	return r.store.GetCategory(ctx, id)
}

func (r *MemoryCategoryRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.SeatCategory, error) {
	return r.store.ListCategoriesByEvent(ctx, eventID)
}

func (r *MemoryCategoryRepository) DecrementAvailable(ctx context.Context, id string, qty int) error {
	return r.store.DecrementCategoryAvailable(ctx, id, qty)
}

func (r *MemoryCategoryRepository) RestoreAvailable(ctx context.Context, id string, qty int) error {
	return r.store.RestoreCategoryAvailable(ctx, id, qty)
}

type MemoryEventRepository struct{ store *MemoryStore }

func NewMemoryEventRepository(store *MemoryStore) *MemoryEventRepository {
	return &MemoryEventRepository{store: store}
}

func (r *MemoryEventRepository) Create(ctx context.Context, e *domain.Event) error {
	return r.store.CreateEvent(ctx, e)
}

func (r *MemoryEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	return r.store.GetEvent(ctx, id)
}

func (r *MemoryEventRepository) DecrementAvailable(ctx context.Context, id string, qty int) error {
	return r.store.DecrementEventAvailable(ctx, id, qty)
}

func (r *MemoryEventRepository) RestoreAvailable(ctx context.Context, id string, qty int) error {
	return r.store.RestoreEventAvailable(ctx, id, qty)
}

type MemoryCartRepository struct{ store *MemoryStore }

func NewMemoryCartRepository(store *MemoryStore) *MemoryCartRepository {
	return &MemoryCartRepository{store: store}
}

func (r *MemoryCartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	return r.store.CreateCart(ctx, cart)
}

func (r *MemoryCartRepository) GetByID(ctx context.Context, id string) (*domain.Cart, error) {
	return r.store.GetCart(ctx, id)
}

func (r *MemoryCartRepository) GetActiveByUserAndEvent(ctx context.Context, userID, eventID string) (*domain.Cart, error) {
	return r.store.GetActiveCartByUserAndEvent(ctx, userID, eventID)
}

func (r *MemoryCartRepository) GetWithItems(ctx context.Context, cartID string) (*domain.CartWithItems, error) {
	return r.store.GetCartWithItems(ctx, cartID)
}

func (r *MemoryCartRepository) UpdateStatus(ctx context.Context, cartID string, from, to domain.CartStatus) error {
	return r.store.UpdateCartStatus(ctx, cartID, from, to)
}

func (r *MemoryCartRepository) Touch(ctx context.Context, cartID string, expiresAt time.Time) error {
	return r.store.TouchCart(ctx, cartID, expiresAt)
}

func (r *MemoryCartRepository) AddItem(ctx context.Context, item *domain.CartItem) error {
	return r.store.AddCartItem(ctx, item)
}

func (r *MemoryCartRepository) GetItem(ctx context.Context, itemID string) (*domain.CartItem, error) {
	return r.store.GetCartItem(ctx, itemID)
}

func (r *MemoryCartRepository) UpdateItemQuantity(ctx context.Context, itemID string, qty int, lockedUntil time.Time) error {
	return r.store.UpdateCartItemQuantity(ctx, itemID, qty, lockedUntil)
}

func (r *MemoryCartRepository) RemoveItem(ctx context.Context, itemID string) error {
	return r.store.RemoveCartItem(ctx, itemID)
}

func (r *MemoryCartRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*domain.Cart, error) {
	return r.store.ListExpiredActiveCarts(ctx, now, limit)
}

type MemoryBookingRepository struct{ store *MemoryStore }

func NewMemoryBookingRepository(store *MemoryStore) *MemoryBookingRepository {
	return &MemoryBookingRepository{store: store}
}

func (r *MemoryBookingRepository) Create(ctx context.Context, b *domain.Booking, items []*domain.BookingItem) error {
	return r.store.CreateBooking(ctx, b, items)
}

func (r *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.BookingWithItems, error) {
	return r.store.GetBooking(ctx, id)
}

func (r *MemoryBookingRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (*domain.BookingWithItems, error) {
	return r.store.GetBookingByGatewayOrderID(ctx, orderID)
}

func (r *MemoryBookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	return r.store.ListBookingsByUser(ctx, userID, limit, offset)
}

func (r *MemoryBookingRepository) UpdateStatus(ctx context.Context, id string, from, to domain.BookingStatus, reason string) error {
	return r.store.UpdateBookingStatus(ctx, id, from, to, reason)
}

func (r *MemoryBookingRepository) SetGatewayOrderID(ctx context.Context, id, orderID string) error {
	return r.store.SetGatewayOrderID(ctx, id, orderID)
}

func (r *MemoryBookingRepository) MarkReversed(ctx context.Context, id string) (bool, error) {
	return r.store.MarkReversed(ctx, id)
}

func (r *MemoryBookingRepository) CountSoldByCategory(ctx context.Context, categoryID string) (int, error) {
	return r.store.CountSoldByCategory(ctx, categoryID)
}

// compile-time interface checks
var (
	_ TxManager          = (*MemoryStore)(nil)
	_ SeatRepository     = (*MemoryStore)(nil)
	_ QueueRepository    = (*MemoryStore)(nil)
	_ CategoryRepository = (*MemoryCategoryRepository)(nil)
	_ EventRepository    = (*MemoryEventRepository)(nil)
	_ CartRepository     = (*MemoryCartRepository)(nil)
	_ BookingRepository  = (*MemoryBookingRepository)(nil)
)
