package yieldcalc

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	BpsDenominator = 10000
	SecondsPerDay  = 86400
	SecondsPerHour = 3600
)

var (
	bpsDenominator = decimal.NewFromInt(BpsDenominator)
	secondsPerDay  = decimal.NewFromInt(SecondsPerDay)
)

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// toUint64 截断取整，超过 uint64 上限时封顶
func toUint64(d decimal.Decimal) uint64 {
	if d.Sign() <= 0 {
		return 0
	}
	q := d.Truncate(0).BigInt()
	if !q.IsUint64() {
		return math.MaxUint64
	}
	return q.Uint64()
}

// MulDiv 计算 a * b / c，中间结果不溢出，向零截断
func MulDiv(a, b, c uint64) uint64 {
	if c == 0 || a == 0 || b == 0 {
		return 0
	}
	num := fromUint64(a).Mul(fromUint64(b))
	q, _ := num.QuoRem(fromUint64(c), 0)
	return toUint64(q)
}

// ApplyBps 计算 amount * bps / 10000
func ApplyBps(amount uint64, bps uint64) uint64 {
	return MulDiv(amount, bps, BpsDenominator)
}

// Accrue 按基点日利率线性计息
//
//	rewards = staked * (rate_bps / 10000) * (elapsed_seconds / 86400)
//
// 质押为零或时间未前进时返回 0
func Accrue(staked uint64, rateBps uint16, fromTs, toTs int64) uint64 {
	if staked == 0 || rateBps == 0 || toTs <= fromTs {
		return 0
	}
	elapsed := decimal.NewFromInt(toTs - fromTs)
	num := fromUint64(staked).Mul(decimal.NewFromInt(int64(rateBps))).Mul(elapsed)
	q, _ := num.QuoRem(bpsDenominator.Mul(secondsPerDay), 0)
	return toUint64(q)
}

// ElapsedHours 质押时长（小时，向下取整）
func ElapsedHours(startTs, nowTs int64) int64 {
	if nowTs <= startTs {
		return 0
	}
	return (nowTs - startTs) / SecondsPerHour
}

// PenaltyTier 按质押时长查找罚金档位
//
// 只看前三个阈值：不足 threshold[0] 为 0 档，以此类推，其余为 3 档（无罚金）
func PenaltyTier(elapsedHours int64, thresholds [4]uint32) int {
	switch {
	case elapsedHours < int64(thresholds[0]):
		return 0
	case elapsedHours < int64(thresholds[1]):
		return 1
	case elapsedHours < int64(thresholds[2]):
		return 2
	default:
		return 3
	}
}

// Amplify 收益放大 1.5 倍，向零截断
func Amplify(yieldBps uint32) uint32 {
	return uint32(uint64(yieldBps) * 150 / 100)
}
