package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 同一参与者的质押、转盘、购买加成必须串行：两个并发的转盘请求都读到
// "冷却已结束"，就会在一个冷却窗口里拿到两次收益。
//
// 加锁：SET key value NX EX ttl
//   - NX 保证互斥
//   - EX 兜底，持有者崩溃后锁自动过期
//   - value 为持有者令牌，释放时校验
//
// 释放：Lua 脚本原子地"比较令牌再删除"，过期后被别人拿到的锁不会被误删。
//
// 锁只负责把同一资源的请求排队，余额和冷却的最终校验仍在数据库事务里
// 加行锁后完成。
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期或被其他持有者占用")
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // 持有者令牌
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 带重试的加锁
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return fmt.Errorf("%w: key=%s", ErrLockFailed, l.key)
}

// Unlock 释放锁，令牌不匹配时返回 ErrLockExpired
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// Options 锁的超时与重试参数
type Options struct {
	TTL           time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

// Locker 按资源维度创建锁
type Locker struct {
	client *redis.Client
	opts   Options
}

func NewLocker(client *redis.Client, opts Options) *Locker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 100 * time.Millisecond
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 30
	}
	return &Locker{client: client, opts: opts}
}

// NewOwnerLock 参与者维度的锁，不同参与者之间互不阻塞
func (l *Locker) NewOwnerLock(owner string) *DistributedLock {
	key := fmt.Sprintf("yield:lock:owner:%s", owner)
	return NewDistributedLock(l.client, key, uuid.NewString(), l.opts.TTL)
}

// NewPoolLock 奖励池维度的锁，分配、调整比例和紧急提取互斥
func (l *Locker) NewPoolLock() *DistributedLock {
	return NewDistributedLock(l.client, "yield:lock:pool", uuid.NewString(), l.opts.TTL)
}

// NewPolicyLock 全局参数维度的锁
func (l *Locker) NewPolicyLock(name string) *DistributedLock {
	key := fmt.Sprintf("yield:lock:policy:%s", name)
	return NewDistributedLock(l.client, key, uuid.NewString(), l.opts.TTL)
}

// Acquire 按配置的重试参数加锁
func (l *Locker) Acquire(ctx context.Context, dl *DistributedLock) error {
	return dl.Lock(ctx, l.opts.RetryInterval, l.opts.MaxRetries)
}
