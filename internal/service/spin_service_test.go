package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"yieldengine/internal/infrastructure/randomness"
	"yieldengine/internal/model"
	"yieldengine/internal/testutil"
	"yieldengine/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spinStake = uint64(1_000_000)

// newSpinEnv alice 质押 1_000_000，奖励池有足够余额
func newSpinEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newEnv(t)
	env.credit(t, "alice", spinStake+100_000)
	env.fund(t, env.cfg.Business.Vaults.SpinPayout, 10_000_000)
	_, err := env.svcs.Staking.Deposit(context.Background(), "alice", spinStake)
	require.NoError(t, err)
	return env
}

func defaultSpinPolicy() *model.SpinPolicy {
	return &model.SpinPolicy{
		BaseYieldMinBps:     10,
		BaseYieldMaxBps:     50,
		MoonshotYieldMinBps: 100,
		MoonshotYieldMaxBps: 300,
		MoonshotProbability: 20,
		FallbackYieldBps:    50,
		CooldownSeconds:     86400,
	}
}

func TestDraw(t *testing.T) {
	const now = startTime
	cases := []struct {
		name    string
		seed    uint64
		profile model.SpinProfile
		want    Outcome
		left    model.SpinProfile
	}{
		{
			name: "基础区间",
			seed: 50,
			want: Outcome{YieldBps: 19},
		},
		{
			name: "moonshot",
			seed: 5,
			want: Outcome{YieldBps: 105, IsMoonshot: true},
		},
		{
			name:    "幸运符把概率抬到 30",
			seed:    25,
			profile: model.SpinProfile{LuckySpins: 2},
			want:    Outcome{YieldBps: 125, IsMoonshot: true, LuckyCharmUsed: true},
			left:    model.SpinProfile{LuckySpins: 1},
		},
		{
			name:    "护盾抬到保底",
			seed:    50,
			profile: model.SpinProfile{ShieldSpins: 1},
			want:    Outcome{YieldBps: 50, ShieldUsed: true},
		},
		{
			name:    "已达保底时护盾不消耗",
			seed:    81,
			profile: model.SpinProfile{ShieldSpins: 1},
			want:    Outcome{YieldBps: 50},
			left:    model.SpinProfile{ShieldSpins: 1},
		},
		{
			name:    "放大器",
			seed:    50,
			profile: model.SpinProfile{AmplifierExpiry: now + 1},
			want:    Outcome{YieldBps: 28, AmplifierActive: true},
			left:    model.SpinProfile{AmplifierExpiry: now + 1},
		},
		{
			name:    "放大器到期时刻不再生效",
			seed:    50,
			profile: model.SpinProfile{AmplifierExpiry: now},
			want:    Outcome{YieldBps: 19},
			left:    model.SpinProfile{AmplifierExpiry: now},
		},
		{
			name:    "护盾之后再放大",
			seed:    50,
			profile: model.SpinProfile{ShieldSpins: 1, AmplifierExpiry: now + 3600},
			want:    Outcome{YieldBps: 75, ShieldUsed: true, AmplifierActive: true},
			left:    model.SpinProfile{AmplifierExpiry: now + 3600},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			profile := c.profile
			got := Draw(defaultSpinPolicy(), &profile, c.seed, now)
			assert.Equal(t, c.want, got)
			assert.Equal(t, c.left, profile)
		})
	}
}

func TestDraw_YieldStaysInRange(t *testing.T) {
	policy := defaultSpinPolicy()
	for seed := uint64(0); seed < 2_000; seed++ {
		out := Draw(policy, &model.SpinProfile{}, seed, startTime)
		if out.IsMoonshot {
			assert.GreaterOrEqual(t, out.YieldBps, uint32(100))
			assert.LessOrEqual(t, out.YieldBps, uint32(300))
		} else {
			assert.GreaterOrEqual(t, out.YieldBps, uint32(10))
			assert.LessOrEqual(t, out.YieldBps, uint32(50))
		}
	}
}

func TestSpin_PaysAndRecords(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)
	before := env.wallet(t, "alice")

	result, err := env.svcs.Spin.Spin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.SpinKindSpin, result.Kind)
	assert.Equal(t, uint32(19), result.YieldBps)
	assert.False(t, result.IsMoonshot)
	assert.Equal(t, uint64(1_900), result.TokensPaid)
	assert.Equal(t, spinStake, result.StakeAmount)
	assert.Equal(t, before+1_900, env.wallet(t, "alice"))

	profile, err := env.svcs.Spin.GetSpinProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, startTime, profile.LastSpinAt)
	assert.Equal(t, uint32(1), profile.SpinCount)
	assert.Equal(t, uint64(1_900), profile.TotalBaseEarned)
	assert.Zero(t, profile.TotalMoonshotEarned)

	records, total, err := env.svcs.Spin.ListSpinRecords(ctx, "alice", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, uint64(50), records[0].Seed)
	assert.Len(t, env.events(t, model.EventSpinSettled), 1)
}

func TestSpin_MoonshotTracksSeparately(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)
	env.seeds.src = randomness.Fixed(5)

	result, err := env.svcs.Spin.Spin(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, result.IsMoonshot)
	assert.Equal(t, uint64(10_500), result.TokensPaid)

	profile, err := env.svcs.Spin.GetSpinProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(10_500), profile.TotalMoonshotEarned)
	assert.Zero(t, profile.TotalBaseEarned)
}

func TestSpin_Cooldown(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)

	_, err := env.svcs.Spin.Spin(ctx, "alice")
	require.NoError(t, err)

	env.clock.Advance(86400*time.Second - time.Second)
	_, err = env.svcs.Spin.Spin(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotYetEligible)

	_, err = env.svcs.Spin.ClaimFallbackYield(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotYetEligible, "保底领取与转盘共用冷却")

	env.clock.Advance(time.Second)
	_, err = env.svcs.Spin.Spin(ctx, "alice")
	require.NoError(t, err)
}

func TestSpin_RequiresStake(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)

	_, err := env.svcs.Spin.Spin(ctx, "bob")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = env.svcs.Spin.Spin(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	profile, err := env.svcs.Spin.GetSpinProfile(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, profile.LastSpinAt, "失败的转盘不进入冷却")
}

func TestSpin_UnderfundedPayoutRollsBack(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.credit(t, "alice", spinStake)
	_, err := env.svcs.Staking.Deposit(ctx, "alice", spinStake)
	require.NoError(t, err)

	_, err = env.svcs.Spin.Spin(ctx, "alice")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	profile, err := env.svcs.Spin.GetSpinProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, profile.LastSpinAt)
	assert.Zero(t, profile.SpinCount)
}

func TestClaimFallbackYield(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)
	before := env.wallet(t, "alice")

	result, err := env.svcs.Spin.ClaimFallbackYield(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.SpinKindFallback, result.Kind)
	assert.Equal(t, uint32(50), result.YieldBps)
	assert.Equal(t, uint64(5_000), result.TokensPaid)
	assert.Equal(t, before+5_000, env.wallet(t, "alice"))

	profile, err := env.svcs.Spin.GetSpinProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, profile.SpinCount)
	assert.Equal(t, uint64(5_000), profile.TotalBaseEarned)
	assert.Equal(t, startTime, profile.LastSpinAt)
	assert.Len(t, env.events(t, model.EventFallbackClaimed), 1)

	_, err = env.svcs.Spin.Spin(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotYetEligible)
}

func TestBoosters_ConsumedBySpin(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)
	pool := env.cfg.Business.Vaults.RewardsPool

	poolBefore := env.balance(t, pool)
	profile, err := env.svcs.Spin.ActivateLuckyCharm(ctx, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), profile.LuckySpins)
	assert.Equal(t, uint64(100_000-2_000), env.wallet(t, "alice"))
	assert.Equal(t, poolBefore+2_000, env.balance(t, pool), "加成费用进入奖励池")

	env.seeds.src = randomness.Fixed(25)
	result, err := env.svcs.Spin.Spin(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, result.LuckyCharmUsed)
	assert.True(t, result.IsMoonshot)
	assert.Equal(t, uint32(125), result.YieldBps)

	profile, err = env.svcs.Spin.GetSpinProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), profile.LuckySpins)
}

func TestBoosters_ShieldAndAmplifier(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)

	_, err := env.svcs.Spin.ActivateChadShield(ctx, "alice", 1)
	require.NoError(t, err)
	_, err = env.svcs.Spin.ActivateYieldAmplifier(ctx, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000-2_000-1_000), env.wallet(t, "alice"))

	result, err := env.svcs.Spin.Spin(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, result.ShieldUsed)
	assert.True(t, result.AmplifierActive)
	assert.Equal(t, uint32(75), result.YieldBps)
	assert.Equal(t, uint64(7_500), result.TokensPaid)

	profile, err := env.svcs.Spin.GetSpinProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, profile.ShieldSpins)
}

func TestActivateYieldAmplifier_Extends(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)

	profile, err := env.svcs.Spin.ActivateYieldAmplifier(ctx, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, startTime+2*3600, profile.AmplifierExpiry)

	env.clock.Advance(time.Hour)
	profile, err = env.svcs.Spin.ActivateYieldAmplifier(ctx, "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, startTime+5*3600, profile.AmplifierExpiry, "未过期时顺延")

	env.clock.Advance(10 * time.Hour)
	profile, err = env.svcs.Spin.ActivateYieldAmplifier(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now()+3600, profile.AmplifierExpiry, "过期后从现在算起")
}

func TestBoosters_Rejections(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)

	_, err := env.svcs.Spin.ActivateLuckyCharm(ctx, "alice", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svcs.Spin.ActivateLuckyCharm(ctx, "alice", 6)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svcs.Spin.ActivateYieldAmplifier(ctx, "alice", 25)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svcs.Spin.ActivateChadShield(ctx, "alice", 4)
	assert.ErrorIs(t, err, ErrInvalidInput)

	env.credit(t, "bob", 1_999)
	_, err = env.svcs.Spin.ActivateChadShield(ctx, "bob", 1)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(1_999), env.wallet(t, "bob"))

	profile, err := env.svcs.Spin.GetSpinProfile(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, profile.ShieldSpins)
}

func TestUpdateSpinPolicy(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)

	prob := uint8(100)
	_, err := env.svcs.Spin.UpdateSpinPolicy(ctx, "mallory", &SpinPolicyUpdate{MoonshotProbability: &prob})
	assert.ErrorIs(t, err, ErrUnauthorized)

	bad := uint8(101)
	_, err = env.svcs.Spin.UpdateSpinPolicy(ctx, admin, &SpinPolicyUpdate{MoonshotProbability: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	lo := uint16(60)
	_, err = env.svcs.Spin.UpdateSpinPolicy(ctx, admin, &SpinPolicyUpdate{BaseYieldMinBps: &lo})
	assert.ErrorIs(t, err, ErrInvalidInput, "min 大于 max")

	zero := uint32(0)
	_, err = env.svcs.Spin.UpdateSpinPolicy(ctx, admin, &SpinPolicyUpdate{CooldownSeconds: &zero})
	assert.ErrorIs(t, err, ErrInvalidInput)

	policy, err := env.svcs.Spin.GetPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(10), policy.BaseYieldMinBps, "失败的更新不落库")

	cooldown := uint32(3600)
	policy, err = env.svcs.Spin.UpdateSpinPolicy(ctx, admin, &SpinPolicyUpdate{MoonshotProbability: &prob, CooldownSeconds: &cooldown})
	require.NoError(t, err)
	assert.Equal(t, uint8(100), policy.MoonshotProbability)
	assert.Equal(t, uint32(3600), policy.CooldownSeconds)
	assert.Equal(t, uint16(50), policy.FallbackYieldBps)

	result, err := env.svcs.Spin.Spin(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, result.IsMoonshot)

	env.clock.Advance(time.Hour)
	_, err = env.svcs.Spin.Spin(ctx, "alice")
	require.NoError(t, err)
}

func TestSpin_ConcurrentSameOwnerSettlesOnce(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svcs.Spin.Spin(ctx, "alice")
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		kind := Kind(err)
		assert.True(t, kind == ErrNotYetEligible || kind == ErrSystemBusy, "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	_, total, err := env.svcs.Spin.ListSpinRecords(ctx, "alice", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestSpin_RejectsZeroClock(t *testing.T) {
	ctx := context.Background()
	env := newSpinEnv(t)
	rdb, _ := testutil.NewRedis(t)
	svcs := NewServices(env.db, rdb, env.cfg, clock.NewManual(0), randomness.Fixed(50))

	_, err := svcs.Spin.Spin(ctx, "alice")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svcs.Spin.ClaimFallbackYield(ctx, "alice")
	assert.ErrorIs(t, err, ErrInvalidInput)

	profile, err := env.svcs.Spin.GetSpinProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, profile.SpinCount)

	_, err = env.svcs.Spin.Spin(ctx, "alice")
	require.NoError(t, err, "首次转盘不受冷却限制")
}
