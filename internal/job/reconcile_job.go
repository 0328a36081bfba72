package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"yieldengine/internal/config"
	"yieldengine/internal/ledger"
	"yieldengine/internal/model"
	"yieldengine/internal/repository"

	"gorm.io/gorm"
)

// ReconcileReport 一次对账的结果
type ReconcileReport struct {
	TotalStaked      uint64
	SumStaked        uint64
	StakeVault       uint64
	Remainder        uint64
	OutboxPending    int64
	OutboxFailed     int64
	StakeMismatch    bool
	VaultUnderfunded bool
}

func (r *ReconcileReport) OK() bool {
	return !r.StakeMismatch && !r.VaultUnderfunded
}

// ReconcileJob 定期核对质押总量与质押金库，并记录奖励池未分配余额
type ReconcileJob struct {
	cfg        *config.Config
	stakeRepo  *repository.StakeRepository
	poolRepo   *repository.PoolRepository
	outboxRepo *repository.OutboxRepository
	ledger     *ledger.Ledger
	stopCh     chan struct{}
	interval   time.Duration
}

func NewReconcileJob(db *gorm.DB, cfg *config.Config) *ReconcileJob {
	interval := time.Duration(cfg.Schedule.ReconcileIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileJob{
		cfg:        cfg,
		stakeRepo:  repository.NewStakeRepository(db),
		poolRepo:   repository.NewPoolRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		ledger:     ledger.New(db, cfg.Business.ProgramID, cfg.Business.TokenMint),
		stopCh:     make(chan struct{}),
		interval:   interval,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Println("[ReconcileJob] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ReconcileJob] 任务停止")
			return
		case <-ticker.C:
			if _, err := j.Check(ctx); err != nil {
				log.Printf("[ReconcileJob] 对账失败: %v", err)
			}
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *ReconcileJob) Check(ctx context.Context) (*ReconcileReport, error) {
	policy, err := j.stakeRepo.GetPolicy(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("查询质押策略失败: %w", err)
	}
	sum, err := j.stakeRepo.SumStaked(ctx)
	if err != nil {
		return nil, fmt.Errorf("汇总质押记录失败: %w", err)
	}
	vaultBalance, err := j.ledger.Balance(ctx, nil, j.cfg.Business.Vaults.StakeVault)
	if err != nil {
		return nil, fmt.Errorf("查询质押金库失败: %w", err)
	}
	poolPolicy, err := j.poolRepo.GetPolicy(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("查询奖励池策略失败: %w", err)
	}
	remainder, err := j.ledger.Balance(ctx, nil, poolPolicy.SourceVault)
	if err != nil {
		return nil, fmt.Errorf("查询奖励池余额失败: %w", err)
	}

	pending, err := j.outboxRepo.CountByStatus(ctx, model.OutboxStatusPending)
	if err != nil {
		return nil, fmt.Errorf("统计待发送事件失败: %w", err)
	}
	failed, err := j.outboxRepo.CountByStatus(ctx, model.OutboxStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("统计发送失败事件失败: %w", err)
	}

	report := &ReconcileReport{
		TotalStaked:      policy.TotalStaked,
		SumStaked:        sum,
		StakeVault:       vaultBalance,
		Remainder:        remainder,
		OutboxPending:    pending,
		OutboxFailed:     failed,
		StakeMismatch:    policy.TotalStaked != sum,
		VaultUnderfunded: vaultBalance < policy.TotalStaked,
	}

	if report.StakeMismatch {
		log.Printf("[ReconcileJob] 质押总量不一致: total_staked=%d, sum=%d", report.TotalStaked, report.SumStaked)
	}
	if report.VaultUnderfunded {
		log.Printf("[ReconcileJob] 质押金库余额不足: vault=%d, total_staked=%d", report.StakeVault, report.TotalStaked)
	}
	if report.OutboxFailed > 0 {
		log.Printf("[ReconcileJob] 有 %d 条事件超过重试次数未投递", report.OutboxFailed)
	}
	log.Printf("[ReconcileJob] 奖励池未分配余额: %d, 待发送事件: %d", report.Remainder, report.OutboxPending)
	return report, nil
}
