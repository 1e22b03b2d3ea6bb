package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock is held by another owner")

const (
	unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

// Locker is a single-owner lock on one redis key. Only the owner value can
// release or extend it.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{client: client, key: key, value: value}
}

func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, l.key)
	}
	return nil
}

func (l *Locker) Unlock(ctx context.Context) error {
	res, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if res == int64(0) {
		return fmt.Errorf("unlock %s: lock expired or owned by someone else", l.key)
	}
	return nil
}

func (l *Locker) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, strconv.FormatInt(ttl.Milliseconds(), 10)).Result()
	if err != nil {
		return err
	}
	if res == int64(0) {
		return fmt.Errorf("extend %s: lock expired or owned by someone else", l.key)
	}
	return nil
}

// WaitLock retries Lock with exponential backoff until wait elapses.
func (l *Locker) WaitLock(ctx context.Context, ttl, wait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = wait

	err := backoff.Retry(func() error {
		err := l.Lock(ctx, ttl)
		if err == nil || errors.Is(err, ErrLockHeld) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
	if errors.Is(err, ErrLockHeld) {
		return fmt.Errorf("could not acquire %s within %s: %w", l.key, wait, err)
	}
	return err
}

// Manager hands out named locks with a fixed ttl and wait budget.
type Manager struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

func NewManager(client redis.UniversalClient, prefix string, ttl, wait time.Duration) *Manager {
	return &Manager{client: client, prefix: prefix, ttl: ttl, wait: wait}
}

// Acquire blocks until the lock for name is held and returns its release
// func. Until released, the lock is extended every ttl/3 so a holder that
// runs past ttl keeps it.
func (m *Manager) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	l := NewLocker(m.client, m.prefix+name, uuid.NewString())
	if err := l.WaitLock(ctx, m.ttl, m.wait); err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(m.ttl, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		return l.Unlock(ctx)
	}, nil
}

func (l *Locker) keepAlive(ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			// a failed extend is retried on the next tick
			_ = l.Extend(ctx, ttl)
			cancel()
		}
	}
}
