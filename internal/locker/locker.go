package locker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another operation already holds the task lock.
var ErrLocked = errors.New("task is locked by another operation")

// TaskLocker serializes submit/approve/reject/pay per task id. Acquire returns
// a release func on success and ErrLocked when the task is busy.
type TaskLocker interface {
	Acquire(ctx context.Context, taskID uuid.UUID) (release func(), err error)
}

// RedisLocker implements TaskLocker with SET NX + TTL, so a crashed holder
// cannot wedge a task forever.
type RedisLocker struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{RDB: rdb, TTL: 30 * time.Second}
}

func (l *RedisLocker) Acquire(ctx context.Context, taskID uuid.UUID) (func(), error) {
	key := "task_lock:" + taskID.String()
	token := uuid.New().String()

	ok, err := l.RDB.SetNX(ctx, key, token, l.TTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}

	release := func() {
		// Only delete the lock if we still own it.
		const unlock = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		l.RDB.Eval(context.Background(), unlock, []string{key}, token)
	}
	return release, nil
}

// MemoryLocker is a process-local TaskLocker used in tests and single-node
// deployments without Redis.
type MemoryLocker struct {
	mu    sync.Mutex
	taken map[uuid.UUID]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{taken: make(map[uuid.UUID]bool)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, taskID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.taken[taskID] {
		return nil, ErrLocked
	}
	l.taken[taskID] = true
	return func() {
		l.mu.Lock()
		delete(l.taken, taskID)
		l.mu.Unlock()
	}, nil
}
