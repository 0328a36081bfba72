package clock

import (
	"sync"
	"time"
)

// Clock 时间源：单调不减的墙钟秒数
//
// 同一个业务操作内只读取一次，冷却判断与奖励计算使用同一个时间点
type Clock interface {
	Now() int64
}

// System 系统时钟
type System struct{}

func (System) Now() int64 {
	return time.Now().Unix()
}

// Manual 手动推进的时钟，用于测试和回放
type Manual struct {
	mu  sync.Mutex
	now int64
}

func NewManual(start int64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance 向前推进，负数被忽略以保持单调
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now += int64(d / time.Second)
	}
}

func (m *Manual) Set(ts int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts > m.now {
		m.now = ts
	}
}
