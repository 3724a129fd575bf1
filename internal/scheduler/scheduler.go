// Package scheduler 定时任务：整点/半点自动查询、
// 每日23:59:30收尾查询、凌晨2点数据库备份与过期备份清理。
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/service"
	"github.com/reeedirect/billing/internal/session"
	"github.com/reeedirect/billing/internal/timeutil"
)

// Querier 自动查询入口，由service.Service实现。
type Querier interface {
	Query(ctx context.Context, identity string, isAuto bool) (*service.Result, error)
	Probe(ctx context.Context, identity string) bool
}

// Backups 备份操作，由repository.BackupRepo实现。
type Backups interface {
	Create() (string, error)
	Cleanup(retentionDays int) (deleted, remaining int, err error)
}

// Scheduler 按北京时间触发各定时任务。
type Scheduler struct {
	querier       Querier
	backups       Backups
	store         session.Store
	logger        *zap.Logger
	retentionDays int

	stop chan struct{}
	done chan struct{}
}

func New(querier Querier, backups Backups, store session.Store, retentionDays int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		querier:       querier,
		backups:       backups,
		store:         store,
		logger:        logger,
		retentionDays: retentionDays,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start 启动调度循环，非阻塞。
func (s *Scheduler) Start() {
	go s.loop()
	s.logger.Info("定时任务已启动",
		zap.String("auto_query", "每小时的0分和30分"),
		zap.String("closing_query", "每天23:59:30"),
		zap.String("backup", "每天02:00"))
}

// Stop 停止调度并等待循环退出。
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

type job struct {
	name string
	next func(time.Time) time.Time
	run  func()
}

func (s *Scheduler) loop() {
	defer close(s.done)

	jobs := []*job{
		{name: "自动查询", next: nextHalfHour, run: s.runAutoQuery},
		{name: "收尾查询", next: nextClosing, run: s.runAutoQuery},
		{name: "数据库备份", next: nextBackup, run: s.runBackup},
	}

	timers := make([]*time.Timer, len(jobs))
	for i, j := range jobs {
		timers[i] = time.NewTimer(time.Until(j.next(timeutil.Now())))
	}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	cases := make([]<-chan time.Time, len(timers))
	for i, t := range timers {
		cases[i] = t.C
	}

	for {
		select {
		case <-s.stop:
			return
		case <-cases[0]:
			s.fire(jobs[0])
			timers[0].Reset(time.Until(jobs[0].next(timeutil.Now())))
		case <-cases[1]:
			s.fire(jobs[1])
			timers[1].Reset(time.Until(jobs[1].next(timeutil.Now())))
		case <-cases[2]:
			s.fire(jobs[2])
			timers[2].Reset(time.Until(jobs[2].next(timeutil.Now())))
		}
	}
}

// fire 执行单个任务并兜住panic，调度循环本身不允许被任务拖垮。
func (s *Scheduler) fire(j *job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("定时任务异常退出", zap.String("job", j.name), zap.Any("panic", r))
		}
	}()
	s.logger.Info("定时任务触发", zap.String("job", j.name))
	j.run()
}

// runAutoQuery 定时查询。先逐个探测密码用户的认证会话，
// 探测失败的当场清除登录状态；没有任何会话通过探测就跳过本轮，
// 定时路径绝不发起重新认证。
func (s *Scheduler) runAutoQuery() {
	if !s.store.AnyLoggedIn() {
		s.logger.Info("所有用户都未登录，跳过自动查询")
		return
	}
	identities := s.store.PasswordIdentities()
	if len(identities) == 0 {
		s.logger.Info("没有密码登录的用户，跳过自动查询")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	chosen := ""
	for _, identity := range identities {
		if s.querier.Probe(ctx, identity) {
			chosen = identity
			break
		}
		s.logger.Info("用户会话已失效，清除登录状态", zap.String("identity", identity))
		s.store.DeleteUser(identity)
	}
	if chosen == "" {
		s.logger.Info("没有有效的用户会话，跳过自动查询")
		return
	}

	result, err := s.querier.Query(ctx, chosen, true)
	if err != nil {
		if service.IsSessionError(err) {
			s.logger.Warn("自动查询会话失效，清除登录状态",
				zap.String("identity", chosen), zap.Error(err))
			s.store.DeleteUser(chosen)
			return
		}
		s.logger.Error("自动查询失败", zap.Error(err))
		return
	}
	s.logger.Info("自动查询成功",
		zap.Float64("remaining", result.RemainingAmount),
		zap.String("query_time", result.QueryTime))
}

func (s *Scheduler) runBackup() {
	table, err := s.backups.Create()
	if err != nil {
		s.logger.Error("数据库备份失败", zap.Error(err))
	} else {
		s.logger.Info("数据库备份完成", zap.String("table", table))
	}

	deleted, remaining, err := s.backups.Cleanup(s.retentionDays)
	if err != nil {
		s.logger.Error("清理过期备份失败", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("清理过期备份完成",
			zap.Int("deleted", deleted),
			zap.Int("remaining", remaining))
	}
}

// NextAutoQueryTimes 从now起接下来n次自动查询的触发时间。
func NextAutoQueryTimes(now time.Time, n int) []time.Time {
	times := make([]time.Time, 0, n)
	next := nextHalfHour(now)
	for i := 0; i < n; i++ {
		times = append(times, next)
		next = nextHalfHour(next)
	}
	return times
}

// nextHalfHour 下一个整点或半点。
func nextHalfHour(now time.Time) time.Time {
	now = now.In(timeutil.Location())
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, timeutil.Location())
	if now.Minute() < 30 {
		next = next.Add(30 * time.Minute)
	} else {
		next = next.Add(time.Hour)
	}
	return next
}

// nextClosing 下一个23:59:30。
func nextClosing(now time.Time) time.Time {
	now = now.In(timeutil.Location())
	next := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 30, 0, timeutil.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// nextBackup 下一个02:00。
func nextBackup(now time.Time) time.Time {
	now = now.In(timeutil.Location())
	next := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, timeutil.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
