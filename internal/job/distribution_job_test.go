package job

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"yieldengine/internal/model"
	"yieldengine/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDistributor struct {
	history *model.DistributionHistory
	err     error
	calls   int
}

func (d *stubDistributor) Distribute(context.Context) (*model.DistributionHistory, error) {
	d.calls++
	return d.history, d.err
}

func TestDistributionJob_RunOnce(t *testing.T) {
	cases := []struct {
		name    string
		stub    *stubDistributor
		wantNil bool
	}{
		{"分配成功", &stubDistributor{history: &model.DistributionHistory{DistributionNo: "D1", TotalAmount: 10}}, false},
		{"未到时间", &stubDistributor{err: fmt.Errorf("%w: 距下次分配还有 10 秒", service.ErrNotYetEligible)}, true},
		{"池子为空", &stubDistributor{err: fmt.Errorf("%w: 奖励池余额为0", service.ErrNothingToClaim)}, true},
		{"其他错误", &stubDistributor{err: errors.New("db down")}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			job := NewDistributionJob(c.stub, "0 */10 * * * *")
			history := job.RunOnce(context.Background())
			assert.Equal(t, 1, c.stub.calls)
			if c.wantNil {
				assert.Nil(t, history)
			} else {
				assert.Equal(t, c.stub.history, history)
			}
		})
	}
}

func TestDistributionJob_StartRejectsBadSpec(t *testing.T) {
	job := NewDistributionJob(&stubDistributor{}, "every ten minutes")
	assert.Error(t, job.Start(context.Background()))
}

func TestDistributionJob_StartStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := NewDistributionJob(&stubDistributor{}, "0 0 0 1 1 *")
	require.NoError(t, job.Start(ctx))
	assert.Len(t, job.cron.Entries(), 1)
	cancel()
}
