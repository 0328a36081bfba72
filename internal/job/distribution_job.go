package job

import (
	"context"
	"errors"
	"log"

	"yieldengine/internal/model"
	"yieldengine/internal/service"

	"github.com/robfig/cron/v3"
)

// Distributor 奖励池分配入口
type Distributor interface {
	Distribute(ctx context.Context) (*model.DistributionHistory, error)
}

// DistributionJob 按 cron 表达式定时触发奖励池分配
// 分配本身不需要权限，任务只是替运营省去手动调用
type DistributionJob struct {
	distributor Distributor
	spec        string
	cron        *cron.Cron
}

func NewDistributionJob(distributor Distributor, spec string) *DistributionJob {
	return &DistributionJob{
		distributor: distributor,
		spec:        spec,
		cron:        cron.New(cron.WithSeconds()),
	}
}

func (j *DistributionJob) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc(j.spec, func() { j.RunOnce(ctx) })
	if err != nil {
		return err
	}
	j.cron.Start()
	log.Printf("[DistributionJob] 分配任务启动: spec=%s", j.spec)

	go func() {
		<-ctx.Done()
		<-j.cron.Stop().Done()
		log.Println("[DistributionJob] 收到停止信号，任务退出")
	}()
	return nil
}

// RunOnce 触发一次分配，未到时间或池子为空不算错误
func (j *DistributionJob) RunOnce(ctx context.Context) *model.DistributionHistory {
	history, err := j.distributor.Distribute(ctx)
	switch {
	case err == nil:
		log.Printf("[DistributionJob] 分配完成: no=%s, total=%d, remainder=%d",
			history.DistributionNo, history.TotalAmount, history.Remainder)
		return history
	case errors.Is(err, service.ErrNotYetEligible), errors.Is(err, service.ErrNothingToClaim):
		log.Printf("[DistributionJob] 本轮跳过: %v", err)
	default:
		log.Printf("[DistributionJob] 分配失败: %v", err)
	}
	return nil
}
