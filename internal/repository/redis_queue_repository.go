package repository

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seatwise/seatwise/internal/domain"
	pkgredis "github.com/seatwise/seatwise/internal/redis"
	"github.com/seatwise/seatwise/internal/telemetry"
)

//go:embed scripts/join_queue.lua
var joinQueueScript string

//go:embed scripts/tick_queue.lua
var tickQueueScript string

//go:embed scripts/finish_queue.lua
var finishQueueScript string

// Script names for caching
const (
	scriptJoinQueue   = "join_queue"
	scriptTickQueue   = "tick_queue"
	scriptFinishQueue = "finish_queue"
)

const activeEventsKey = "queue:active_events"

// RedisQueueRepository implements QueueRepository on Redis. Waiting entries
// live in a zset scored by position, processing entries in a zset scored by
// their expiry, and the per-event position counter is a plain INCR key that
// never rewinds. All multi-key transitions run as Lua so concurrent ticks and
// joins stay atomic.
type RedisQueueRepository struct {
	client *pkgredis.Client
}

func NewRedisQueueRepository(client *pkgredis.Client) *RedisQueueRepository {
	return &RedisQueueRepository{client: client}
}

// LoadScripts loads all queue Lua scripts into the Redis script cache.
func (r *RedisQueueRepository) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptJoinQueue:   joinQueueScript,
		scriptTickQueue:   tickQueueScript,
		scriptFinishQueue: finishQueueScript,
	}
	for name, script := range scripts {
		if _, err := r.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}
	return nil
}

func waitingKey(eventID string) string    { return fmt.Sprintf("queue:%s:waiting", eventID) }
func processingKey(eventID string) string { return fmt.Sprintf("queue:%s:processing", eventID) }
func positionKey(eventID string) string   { return fmt.Sprintf("queue:%s:pos", eventID) }
func entryKeyPrefix(eventID string) string {
	return fmt.Sprintf("queue:%s:entry:", eventID)
}

func (r *RedisQueueRepository) Join(ctx context.Context, eventID, userID string, now time.Time) (*domain.QueueEntry, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "QueueRepository.Join")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("user_id", userID),
	)

	keys := []string{
		waitingKey(eventID),
		entryKeyPrefix(eventID) + userID,
		positionKey(eventID),
		activeEventsKey,
	}
	args := []interface{}{userID, eventID, uuid.NewString(), now.Unix()}

	result := r.client.EvalWithFallback(ctx, scriptJoinQueue, joinQueueScript, keys, args...)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return nil, false, fmt.Errorf("failed to execute join_queue script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil || len(values) < 6 {
		return nil, false, fmt.Errorf("unexpected join_queue script result: %w", err)
	}

	created := asInt64(values[0]) == 1
	entry := &domain.QueueEntry{
		ID:        asString(values[1]),
		EventID:   eventID,
		UserID:    userID,
		Position:  asInt64(values[2]),
		Status:    domain.QueueStatus(asString(values[3])),
		JoinedAt:  unixTime(asInt64(values[4])),
		UpdatedAt: now,
	}
	if exp := asInt64(values[5]); exp > 0 {
		entry.ExpiresAt = timePtr(unixTime(exp))
	}
	span.SetAttributes(attribute.Int64("position", entry.Position))
	return entry, created, nil
}

func (r *RedisQueueRepository) Get(ctx context.Context, eventID, userID string) (*domain.QueueEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "QueueRepository.Get")
	defer span.End()

	fields, err := r.client.HGetAll(ctx, entryKeyPrefix(eventID)+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrQueueEntryNotFound
	}
	return entryFromHash(eventID, userID, fields), nil
}

func (r *RedisQueueRepository) CountWaitingAhead(ctx context.Context, eventID string, position int64) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "QueueRepository.CountWaitingAhead")
	defer span.End()

	ahead, err := r.client.ZCount(ctx, waitingKey(eventID), "-inf", fmt.Sprintf("(%d", position)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting ahead: %w", err)
	}
	return ahead, nil
}

func (r *RedisQueueRepository) Tick(ctx context.Context, eventID string, batchSize int, window time.Duration, now time.Time) (*TickResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "QueueRepository.Tick")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	keys := []string{waitingKey(eventID), processingKey(eventID), activeEventsKey}
	args := []interface{}{
		now.Unix(),
		batchSize,
		int64(window.Seconds()),
		entryKeyPrefix(eventID),
		eventID,
	}

	result := r.client.EvalWithFallback(ctx, scriptTickQueue, tickQueueScript, keys, args...)
	if result.Err() != nil {
		span.RecordError(result.Err())
		span.SetStatus(codes.Error, result.Err().Error())
		return nil, fmt.Errorf("failed to execute tick_queue script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil || len(values) < 2 {
		return nil, fmt.Errorf("unexpected tick_queue script result: %w", err)
	}

	tick := &TickResult{}
	for _, v := range asSlice(values[0]) {
		entry, err := r.Get(ctx, eventID, asString(v))
		if err != nil {
			return nil, err
		}
		tick.Expired = append(tick.Expired, entry)
	}
	for _, v := range asSlice(values[1]) {
		entry, err := r.Get(ctx, eventID, asString(v))
		if err != nil {
			return nil, err
		}
		tick.Promoted = append(tick.Promoted, entry)
	}

	span.SetAttributes(
		attribute.Int("promoted", len(tick.Promoted)),
		attribute.Int("expired", len(tick.Expired)),
	)
	return tick, nil
}

func (r *RedisQueueRepository) Leave(ctx context.Context, eventID, userID string) (*domain.QueueEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "QueueRepository.Leave")
	defer span.End()

	entry, err := r.finish(ctx, eventID, userID, domain.QueueStatusLeft)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *RedisQueueRepository) Complete(ctx context.Context, eventID, userID string) error {
	ctx, span := telemetry.StartSpan(ctx, "QueueRepository.Complete")
	defer span.End()

	_, err := r.finish(ctx, eventID, userID, domain.QueueStatusCompleted)
	return err
}

func (r *RedisQueueRepository) finish(ctx context.Context, eventID, userID string, target domain.QueueStatus) (*domain.QueueEntry, error) {
	now := time.Now()
	keys := []string{
		waitingKey(eventID),
		processingKey(eventID),
		entryKeyPrefix(eventID) + userID,
	}
	args := []interface{}{userID, now.Unix(), string(target)}

	result := r.client.EvalWithFallback(ctx, scriptFinishQueue, finishQueueScript, keys, args...)
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to execute finish_queue script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil || len(values) == 0 {
		return nil, fmt.Errorf("unexpected finish_queue script result: %w", err)
	}
	if asInt64(values[0]) != 1 {
		return nil, domain.ErrQueueEntryNotFound
	}

	return &domain.QueueEntry{
		ID:        asString(values[1]),
		EventID:   eventID,
		UserID:    userID,
		Position:  asInt64(values[2]),
		Status:    target,
		JoinedAt:  unixTime(asInt64(values[3])),
		UpdatedAt: now,
	}, nil
}

func (r *RedisQueueRepository) ActiveEventIDs(ctx context.Context) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "QueueRepository.ActiveEventIDs")
	defer span.End()

	ids, err := r.client.SMembers(ctx, activeEventsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active queue events: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func entryFromHash(eventID, userID string, fields map[string]string) *domain.QueueEntry {
	entry := &domain.QueueEntry{
		ID:        fields["id"],
		EventID:   eventID,
		UserID:    userID,
		Status:    domain.QueueStatus(fields["status"]),
		JoinedAt:  unixTime(parseInt64(fields["joined_at"])),
		UpdatedAt: unixTime(parseInt64(fields["updated_at"])),
	}
	entry.Position = parseInt64(fields["position"])
	if exp := parseInt64(fields["expires_at"]); exp > 0 {
		entry.ExpiresAt = timePtr(unixTime(exp))
	}
	return entry
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func asInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case string:
		return parseInt64(val)
	default:
		return 0
	}
}

func asString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func asSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return nil
}
