package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/booking"
	"github.com/seatwise/seatwise/internal/cart"
	"github.com/seatwise/seatwise/internal/clock"
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/events"
	"github.com/seatwise/seatwise/internal/ledger"
	"github.com/seatwise/seatwise/internal/logger"
	"github.com/seatwise/seatwise/internal/queue"
	"github.com/seatwise/seatwise/internal/repository"
	"github.com/seatwise/seatwise/internal/response"
)

const (
	testSecret = "test-secret"
	testIssuer = "seatwise"
)

// apiFixture wires the full service graph on the memory backend behind the
// real router, so requests exercise auth, binding and error mapping together.
type apiFixture struct {
	router *gin.Engine
	store  *repository.MemoryStore
	queue  *queue.Controller
	clk    *clock.Fake

	eventID string
	gaID    string
}

func newAPIFixture(t *testing.T, queueEnabled bool) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := repository.NewMemoryStore()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log := logger.Get()
	led := ledger.NewService(store, clk, log)

	eventRepo := repository.NewMemoryEventRepository(store)
	cartRepo := repository.NewMemoryCartRepository(store)
	categoryRepo := repository.NewMemoryCategoryRepository(store)
	bookingRepo := repository.NewMemoryBookingRepository(store)

	ctrl := queue.NewController(store, eventRepo, events.NoopPublisher{}, clk, log, queue.Config{
		DefaultBatchSize:         100,
		DefaultProcessingMinutes: 10,
		AvgCheckoutMinutes:       5,
		JWTSecret:                testSecret,
		JWTIssuer:                testIssuer,
	})
	mgr := cart.NewManager(cart.ManagerParams{
		Carts:      cartRepo,
		Events:     eventRepo,
		Categories: categoryRepo,
		Ledger:     led,
		Admission:  ctrl,
		Clock:      clk,
		Logger:     log,
		CartTTL:    30 * time.Minute,
		LockTTL:    10 * time.Minute,
	})
	fin := booking.NewFinalizer(booking.FinalizerParams{
		Tx:         store,
		Carts:      cartRepo,
		Bookings:   bookingRepo,
		Categories: categoryRepo,
		Events:     eventRepo,
		Ledger:     led,
		Queue:      ctrl,
		Publisher:  events.NoopPublisher{},
		Clock:      clk,
		Logger:     log,
	})

	f := &apiFixture{
		store:   store,
		queue:   ctrl,
		clk:     clk,
		eventID: "evt-1",
		gaID:    "cat-ga",
	}

	now := clk.Now()
	require.NoError(t, store.CreateEvent(ctx, &domain.Event{
		ID:              f.eventID,
		Name:            "Test Concert",
		StartsAt:        now.Add(48 * time.Hour),
		BookingOpensAt:  now.Add(-time.Hour),
		BookingClosesAt: now.Add(24 * time.Hour),
		TotalSeats:      2,
		AvailableSeats:  2,
		IsActive:        true,
		QueueEnabled:    queueEnabled,
		QueueBatchSize:  1,
	}))
	require.NoError(t, store.CreateCategory(ctx, &domain.SeatCategory{
		ID: f.gaID, EventID: f.eventID, Name: "Standing",
		Price: 5000, TotalSeats: 2, AvailableSeats: 2, IsActive: true,
	}))

	f.router = NewRouter(RouterParams{
		Queue:     NewQueueHandler(ctrl),
		Cart:      NewCartHandler(mgr),
		Booking:   NewBookingHandler(fin),
		Health:    NewHealthHandler(nil),
		JWTSecret: testSecret,
		JWTIssuer: testIssuer,
	})
	return f
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, userID string, body any) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+userToken(t, userID))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func dataField[T any](t *testing.T, env response.Response, path ...string) T {
	t.Helper()
	node := env.Data
	for _, key := range path {
		m, ok := node.(map[string]any)
		require.True(t, ok, "expected object at %v", path)
		node = m[key]
	}
	out, ok := node.(T)
	require.True(t, ok, "unexpected type %T at %v", node, path)
	return out
}

func TestAPIRequiresAuth(t *testing.T) {
	f := newAPIFixture(t, false)

	rec, env := f.do(t, http.MethodPost, "/api/v1/carts", "", gin.H{"event_id": f.eventID})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.CodeUnauthorized, env.Error.Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t, false)

	// create a cart and add a GA line
	rec, env := f.do(t, http.MethodPost, "/api/v1/carts", "alice", gin.H{"event_id": f.eventID})
	require.Equal(t, http.StatusCreated, rec.Code)
	cartID := dataField[string](t, env, "cart", "id")

	rec, _ = f.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/items", "alice", gin.H{
		"category_id": f.gaID, "quantity": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/carts/"+cartID+"/validate", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/bookings", "alice", gin.H{
		"cart_id": cartID,
		"contact": gin.H{"name": "Alice Example", "email": "alice@example.com"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	bookingID := dataField[string](t, env, "booking", "id")
	assert.Equal(t, "pending", dataField[string](t, env, "booking", "status"))

	rec, env = f.do(t, http.MethodGet, "/api/v1/bookings/"+bookingID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// another buyer no longer fits
	rec, env = f.do(t, http.MethodPost, "/api/v1/carts", "bob", gin.H{"event_id": f.eventID})
	require.Equal(t, http.StatusCreated, rec.Code)
	bobCart := dataField[string](t, env, "cart", "id")

	rec, env = f.do(t, http.MethodPost, "/api/v1/carts/"+bobCart+"/items", "bob", gin.H{
		"category_id": f.gaID, "quantity": 1,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.CodeInsufficient, env.Error.Code)
}

func TestQueueGateOverHTTP(t *testing.T) {
	f := newAPIFixture(t, true)

	// not admitted before joining the queue
	rec, env := f.do(t, http.MethodPost, "/api/v1/carts", "alice", gin.H{"event_id": f.eventID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, response.CodeNotAdmitted, env.Error.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/queue/join", "alice", gin.H{"event_id": f.eventID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "waiting", dataField[string](t, env, "update", "status"))
	assert.Equal(t, float64(1), dataField[float64](t, env, "update", "position"))

	// still waiting, still gated
	rec, _ = f.do(t, http.MethodPost, "/api/v1/carts", "alice", gin.H{"event_id": f.eventID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err := f.queue.Tick(context.Background(), f.eventID)
	require.NoError(t, err)

	rec, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/queue/%s/position", f.eventID), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "processing", dataField[string](t, env, "update", "status"))
	assert.NotEmpty(t, dataField[string](t, env, "admission_pass"))

	rec, _ = f.do(t, http.MethodPost, "/api/v1/carts", "alice", gin.H{"event_id": f.eventID})
	assert.Equal(t, http.StatusCreated, rec.Code, "an admitted user can open a cart")

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/queue/"+f.eventID, "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
