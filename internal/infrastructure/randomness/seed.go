package randomness

import (
	"encoding/binary"
	"hash/fnv"

	"yieldengine/pkg/idgen"
)

// ============================================================================
// 弱随机种子
// ============================================================================
//
// 转盘结果只需要"调用方在调用时无法轻易预知"的种子，不是密码学安全的随机数：
// 种子由参与者、转盘次数和一个最近生成的雪花ID混合而来，雪花ID随时间递增，
// 能观察或影响请求时刻的人可以推测并挑选结果。
//
// 只允许用于低价值分支。需要可验证随机数时实现 Source 接口替换即可，
// 奖励计算不依赖种子的来源。
//
// ============================================================================

// Source 种子来源
type Source interface {
	Seed(owner string, nonce uint64) uint64
}

// RecentIDSource 以最近的雪花ID为熵的弱随机源
type RecentIDSource struct{}

func NewRecentIDSource() *RecentIDSource {
	return &RecentIDSource{}
}

func (RecentIDSource) Seed(owner string, nonce uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], nonce)
	binary.LittleEndian.PutUint64(buf[8:], uint64(idgen.NextID()))

	h := fnv.New64a()
	h.Write([]byte("spin_result"))
	h.Write([]byte(owner))
	h.Write(buf[:])
	return h.Sum64()
}

// Fixed 固定种子，测试与回放用
type Fixed uint64

func (f Fixed) Seed(string, uint64) uint64 {
	return uint64(f)
}

// Sequence 依次返回给定种子，用完后重复最后一个
type Sequence struct {
	seeds []uint64
	next  int
}

func NewSequence(seeds ...uint64) *Sequence {
	return &Sequence{seeds: seeds}
}

func (s *Sequence) Seed(string, uint64) uint64 {
	if len(s.seeds) == 0 {
		return 0
	}
	if s.next >= len(s.seeds) {
		return s.seeds[len(s.seeds)-1]
	}
	v := s.seeds[s.next]
	s.next++
	return v
}
