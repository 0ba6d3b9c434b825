package server

import (
	"context"
	stderrors "errors"
	"time"

	"IntelHarvest/internal/biz"
	"IntelHarvest/internal/conf"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

const defaultRunTimeout = 30 * time.Minute

// CronServer 定时采集任务，实现 transport.Server，随 Kratos App 启停
type CronServer struct {
	cron       *cron.Cron
	uc         *biz.HarvestUsecase
	schedule   string
	runOnStart bool
	runTimeout time.Duration
	logger     *pkglog.LogHelper
}

// NewCronServer 创建定时采集服务
// 执行频率由 harvest.schedule 决定（默认每 6 小时：0 0 */6 * * *，秒 分 时 日 月 周）
func NewCronServer(c *conf.Harvest, uc *biz.HarvestUsecase, logger log.Logger) (*CronServer, error) {
	s := &CronServer{
		cron:       cron.New(cron.WithSeconds()),
		uc:         uc,
		schedule:   c.Schedule,
		runOnStart: c.RunOnStart,
		runTimeout: defaultRunTimeout,
		logger:     pkglog.NewLogHelper(logger),
	}
	if c.RunTimeout != nil && c.RunTimeout.AsDuration() > 0 {
		s.runTimeout = c.RunTimeout.AsDuration()
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(biz.TriggerSchedule) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CronServer) run(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	if _, err := s.uc.Run(ctx, trigger); err != nil {
		if stderrors.Is(err, biz.ErrHarvestInProgress) {
			// 上一次采集尚未结束，跳过本次
			s.logger.Scheduler("Harvest still running, skipping this tick", "trigger", trigger)
			return
		}
		s.logger.Errorw("msg", "Harvest run failed", "trigger", trigger, "error", err)
	}
}

// Start 启动调度器，run_on_start 时立即执行一次
func (s *CronServer) Start(_ context.Context) error {
	s.cron.Start()
	s.logger.Scheduler("Harvest cron job started", "schedule", s.schedule)
	if s.runOnStart {
		go s.run(biz.TriggerStartup)
	}
	return nil
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *CronServer) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Scheduler("Harvest cron job stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
