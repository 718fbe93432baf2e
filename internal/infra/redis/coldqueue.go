package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const coldQueueKey = "notifications:retry_queue"

// ColdQueue holds notifications that exhausted in-process retries, sorted by
// the epoch second at which they become eligible for re-submission.
type ColdQueue struct {
	client *goredis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewColdQueue(client *goredis.Client, logger *zap.Logger) (*ColdQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ColdQueue{
		client: client,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Schedule stores the notification command with a score of now+delay.
func (q *ColdQueue) Schedule(ctx context.Context, n *domain.Notification, delay time.Duration) error {
	member, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal cold queue entry: %w", err)
	}

	executeAt := q.now().Add(delay).Unix()
	if err := q.client.ZAdd(ctx, coldQueueKey, goredis.Z{
		Score:  float64(executeAt),
		Member: member,
	}).Err(); err != nil {
		return fmt.Errorf("failed to schedule cold retry: %w", err)
	}

	q.logger.Info("notification moved to cold queue",
		zap.String("notificationId", n.ID),
		zap.Duration("delay", delay),
	)
	return nil
}

// PopDue returns every entry whose eligibility time has passed. Each entry
// is removed from the sorted set immediately after it is read and before it
// is returned, so two overlapping scheduler runs cannot both claim it: a
// member another run already removed (ZRem count 0) is skipped here.
//
// On a mid-drain failure the entries removed so far are returned alongside
// the error. They no longer exist in the sorted set, so the caller must
// still process them.
func (q *ColdQueue) PopDue(ctx context.Context) ([]domain.Notification, error) {
	now := strconv.FormatInt(q.now().Unix(), 10)

	members, err := q.client.ZRangeByScore(ctx, coldQueueKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due cold queue entries: %w", err)
	}

	due := make([]domain.Notification, 0, len(members))
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, coldQueueKey, member).Result()
		if err != nil {
			return due, fmt.Errorf("failed to remove cold queue entry: %w", err)
		}
		if removed == 0 {
			continue
		}

		var n domain.Notification
		if err := json.Unmarshal([]byte(member), &n); err != nil {
			q.logger.Error("dropping undecodable cold queue entry", zap.Error(err))
			continue
		}
		due = append(due, n)
	}

	return due, nil
}
