package service

import (
	"context"
	"testing"
	"time"

	"yieldengine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subPoolBalances(t *testing.T, env *testEnv) map[string]uint64 {
	t.Helper()
	view, err := env.svcs.Pool.GetPool(context.Background())
	require.NoError(t, err)
	balances := make(map[string]uint64, len(view.SubPools))
	for _, sp := range view.SubPools {
		balances[sp.PoolType] = sp.Balance
	}
	return balances
}

func TestShares(t *testing.T) {
	policy := &model.PoolPolicy{StakingBps: 5000, SpinBps: 3000, ReferralBps: 1500, ReserveBps: 500}

	shares, remainder := Shares(10_000, policy)
	assert.Equal(t, map[string]uint64{
		model.SubPoolStaking:  5_000,
		model.SubPoolSpin:     3_000,
		model.SubPoolReferral: 1_500,
		model.SubPoolReserve:  500,
	}, shares)
	assert.Zero(t, remainder)

	shares, remainder = Shares(9_999, policy)
	assert.Equal(t, uint64(4_999), shares[model.SubPoolStaking])
	assert.Equal(t, uint64(2_999), shares[model.SubPoolSpin])
	assert.Equal(t, uint64(1_499), shares[model.SubPoolReferral])
	assert.Equal(t, uint64(499), shares[model.SubPoolReserve])
	assert.Equal(t, uint64(3), remainder)
}

func TestDistribute_Exact(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.fund(t, env.cfg.Business.Vaults.RewardsPool, 10_000)

	history, err := env.svcs.Pool.Distribute(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), history.TotalAmount)
	assert.Zero(t, history.Remainder)
	assert.Equal(t, startTime, history.DistributedAt)

	assert.Equal(t, map[string]uint64{
		model.SubPoolStaking:  5_000,
		model.SubPoolSpin:     3_000,
		model.SubPoolReferral: 1_500,
		model.SubPoolReserve:  500,
	}, subPoolBalances(t, env))

	view, err := env.svcs.Pool.GetPool(ctx)
	require.NoError(t, err)
	assert.Zero(t, view.SourceBalance)
	assert.Equal(t, uint64(10_000), view.Policy.TotalDistributed)
	assert.Equal(t, startTime, view.Policy.LastDistributionAt)
	for _, sp := range view.SubPools {
		assert.Equal(t, sp.Balance, sp.TotalReceived)
	}
	assert.Len(t, env.events(t, model.EventRewardsDistributed), 1)
}

func TestDistribute_RemainderCarriesOver(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	pool := env.cfg.Business.Vaults.RewardsPool
	env.fund(t, pool, 9_999)

	history, err := env.svcs.Pool.Distribute(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), history.Remainder)
	assert.Equal(t, uint64(4_999), history.StakingAmount)
	assert.Equal(t, uint64(2_999), history.SpinAmount)
	assert.Equal(t, uint64(1_499), history.ReferralAmount)
	assert.Equal(t, uint64(499), history.ReserveAmount)

	remainder, err := env.svcs.Pool.Remainder(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), remainder)

	env.fund(t, pool, 9_997)
	env.clock.Advance(24 * time.Hour)
	history, err = env.svcs.Pool.Distribute(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), history.TotalAmount)
	assert.Zero(t, history.Remainder)

	var sum uint64
	for _, b := range subPoolBalances(t, env) {
		sum += b
	}
	assert.Equal(t, uint64(9_999+9_997), sum)
}

func TestDistribute_Rejections(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	_, err := env.svcs.Pool.Distribute(ctx)
	assert.ErrorIs(t, err, ErrNothingToClaim)

	env.fund(t, env.cfg.Business.Vaults.RewardsPool, 100)
	_, err = env.svcs.Pool.Distribute(ctx)
	require.NoError(t, err)

	env.fund(t, env.cfg.Business.Vaults.RewardsPool, 100)
	env.clock.Advance(24*time.Hour - time.Second)
	_, err = env.svcs.Pool.Distribute(ctx)
	assert.ErrorIs(t, err, ErrNotYetEligible)

	env.clock.Advance(time.Second)
	_, err = env.svcs.Pool.Distribute(ctx)
	require.NoError(t, err)

	histories, total, err := env.svcs.Pool.ListDistributions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, histories, 2)
}

func TestUpdateAllocations(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	_, err := env.svcs.Pool.UpdateAllocations(ctx, "mallory", [4]uint16{2500, 2500, 2500, 2500})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.svcs.Pool.UpdateAllocations(ctx, admin, [4]uint16{5000, 3000, 1500, 499})
	assert.ErrorIs(t, err, ErrInvalidInput)

	view, err := env.svcs.Pool.GetPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(500), view.Policy.ReserveBps, "失败的更新不落库")

	policy, err := env.svcs.Pool.UpdateAllocations(ctx, admin, [4]uint16{2500, 2500, 2500, 2500})
	require.NoError(t, err)
	assert.Equal(t, uint16(2500), policy.StakingBps)

	view, err = env.svcs.Pool.GetPool(ctx)
	require.NoError(t, err)
	for _, sp := range view.SubPools {
		assert.Equal(t, uint16(2500), sp.AllocationBps, sp.PoolType)
	}

	env.fund(t, env.cfg.Business.Vaults.RewardsPool, 1_000)
	_, err = env.svcs.Pool.Distribute(ctx)
	require.NoError(t, err)
	for poolType, b := range subPoolBalances(t, env) {
		assert.Equal(t, uint64(250), b, poolType)
	}
}

func TestValidateAllocations(t *testing.T) {
	assert.NoError(t, ValidateAllocations([4]uint16{10000, 0, 0, 0}))
	assert.ErrorIs(t, ValidateAllocations([4]uint16{0, 0, 0, 0}), ErrInvalidInput)
	assert.ErrorIs(t, ValidateAllocations([4]uint16{10000, 1, 0, 0}), ErrInvalidInput)
	assert.ErrorIs(t, ValidateAllocations([4]uint16{65535, 65535, 0, 0}), ErrInvalidInput)
}

func TestEmergencyWithdraw(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	vaults := env.cfg.Business.Vaults
	env.fund(t, vaults.RewardsPool, 10_000)
	_, err := env.svcs.Pool.Distribute(ctx)
	require.NoError(t, err)

	_, err = env.svcs.Pool.EmergencyWithdraw(ctx, "mallory", 100, vaults.StakingSubPool)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.svcs.Pool.EmergencyWithdraw(ctx, admin, 0, vaults.StakingSubPool)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svcs.Pool.EmergencyWithdraw(ctx, admin, 501, vaults.StakingSubPool)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = env.svcs.Pool.EmergencyWithdraw(ctx, admin, 100, "no_such_vault")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svcs.Pool.EmergencyWithdraw(ctx, admin, 100, vaults.ReservePool)
	assert.ErrorIs(t, err, ErrInvalidInput)

	transferNo, err := env.svcs.Pool.EmergencyWithdraw(ctx, admin, 500, vaults.StakingSubPool)
	require.NoError(t, err)
	assert.NotEmpty(t, transferNo)

	balances := subPoolBalances(t, env)
	assert.Zero(t, balances[model.SubPoolReserve])
	assert.Equal(t, uint64(5_500), balances[model.SubPoolStaking])

	view, err := env.svcs.Pool.GetPool(ctx)
	require.NoError(t, err)
	for _, sp := range view.SubPools {
		if sp.PoolType == model.SubPoolReserve {
			assert.Equal(t, uint64(500), sp.TotalDistributed)
		}
	}
	assert.Len(t, env.events(t, model.EventEmergencyWithdrawn), 1)
}

func TestDistribute_FundsPayouts(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	vaults := env.cfg.Business.Vaults
	env.credit(t, "alice", 1_100_000)
	_, err := env.svcs.Staking.Deposit(ctx, "alice", 1_000_000)
	require.NoError(t, err)
	env.fund(t, vaults.RewardsPool, 1_000_000)

	_, err = env.svcs.Pool.Distribute(ctx)
	require.NoError(t, err)
	assert.Zero(t, env.balance(t, vaults.RewardsPool))
	assert.Equal(t, uint64(500_000), env.balance(t, vaults.StakingSubPool))
	assert.Equal(t, uint64(300_000), env.balance(t, vaults.SpinSubPool))

	spin, err := env.svcs.Spin.Spin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_900), spin.TokensPaid)

	env.clock.Advance(24 * time.Hour)
	rewards, err := env.svcs.Staking.ClaimRewards(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), rewards)

	fallback, err := env.svcs.Spin.ClaimFallbackYield(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), fallback.TokensPaid)

	assert.Equal(t, uint64(495_000), env.balance(t, vaults.StakingSubPool))
	assert.Equal(t, uint64(300_000-1_900-5_000), env.balance(t, vaults.SpinSubPool))
	assert.Equal(t, uint64(100_000+1_900+5_000+5_000), env.wallet(t, "alice"))

	view, err := env.svcs.Pool.GetPool(ctx)
	require.NoError(t, err)
	distributed := make(map[string]uint64, len(view.SubPools))
	for _, sp := range view.SubPools {
		distributed[sp.PoolType] = sp.TotalDistributed
	}
	assert.Equal(t, uint64(5_000), distributed[model.SubPoolStaking])
	assert.Equal(t, uint64(6_900), distributed[model.SubPoolSpin])
	assert.Zero(t, distributed[model.SubPoolReserve])
}
