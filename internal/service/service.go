// Package service 串起会话校验、认证、电费查询、异常重查与入库。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/anomaly"
	"github.com/reeedirect/billing/internal/models"
	"github.com/reeedirect/billing/internal/portal"
	"github.com/reeedirect/billing/internal/session"
	"github.com/reeedirect/billing/internal/timeutil"
)

var (
	// ErrNotLoggedIn 未登录
	ErrNotLoggedIn = errors.New("请先登录")
	// ErrLoginExpired 登录状态已失效，需要重新登录
	ErrLoginExpired = errors.New("登录已过期，请重新登录")
	// ErrNoPasswordUser 没有可用于自动查询的密码登录用户
	ErrNoPasswordUser = errors.New("没有可用的密码登录用户进行自动查询")
)

// Portal 门户操作，由portal.Client实现；注入以便测试。
type Portal interface {
	Authenticate(ctx context.Context, username, password string) (*portal.Session, error)
	Valid(ctx context.Context, s *portal.Session) bool
	QueryBalance(ctx context.Context, s *portal.Session) (float64, error)
}

// Readings 查询记录持久化，由repository.ReadingRepo实现。
type Readings interface {
	Insert(amount float64, queryTime string, isAuto bool) (*models.Reading, error)
	LatestSince(since string) (*models.Reading, error)
}

// Result 一次成功查询的结果
type Result struct {
	RemainingAmount float64 `json:"remainingAmount"`
	QueryTime       string  `json:"queryTime"`
	SessionReused   bool    `json:"sessionReused"`
	Message         string  `json:"message"`
}

// Service 查询编排器。
type Service struct {
	store    session.Store
	portal   Portal
	readings Readings
	guard    *anomaly.Guard
	retry    anomaly.RetryPolicy
	Throttle *Throttle
	logger   *zap.Logger

	sleep func(time.Duration) // 重查前等待，测试中可替换
}

// New wires the query orchestrator.
func New(store session.Store, p Portal, readings Readings, guard *anomaly.Guard, retry anomaly.RetryPolicy, throttle *Throttle, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		portal:   p,
		readings: readings,
		guard:    guard,
		retry:    retry,
		Throttle: throttle,
		logger:   logger,
		sleep:    time.Sleep,
	}
}

// Query 执行一次电费查询并入库。
//
// 流程：探测缓存会话→有效则复用直查；失效（或直查途中发现
// 会话过期）则用密码凭据重新认证后再查，整个过程最多重新
// 认证一次。结果经异常检查，可疑时等待固定延迟后仅复用会话
// 重查一次。被接受的读数总是会入库。
//
// isAuto为真时表示定时查询：identity为空则自动挑选一个持有
// 密码凭据的已登录身份，找不到返回 ErrNoPasswordUser。
func (s *Service) Query(ctx context.Context, identity string, isAuto bool) (*Result, error) {
	if isAuto && identity == "" {
		id, _ := s.store.FindPasswordIdentity()
		if id == "" {
			return nil, ErrNoPasswordUser
		}
		identity = id
		s.logger.Info("自动查询选择用户", zap.String("identity", identity))
	}
	if identity == "" {
		return nil, fmt.Errorf("手动查询需要指定身份")
	}

	amount, sessionReused, err := s.fetchBalance(ctx, identity, isAuto)
	if err != nil {
		return nil, err
	}

	amount = s.recheckIfSuspect(ctx, identity, amount)

	queryTime := timeutil.NowString()
	if _, err := s.readings.Insert(amount, queryTime, isAuto); err != nil {
		s.logger.Error("保存数据失败", zap.Error(err))
		return nil, err
	}

	message := "查询成功"
	if !sessionReused {
		message = "查询成功 (重新认证)"
	}
	s.logger.Info("查询完成",
		zap.Float64("remaining", amount),
		zap.Bool("session_reused", sessionReused),
		zap.Bool("is_auto", isAuto))

	return &Result{
		RemainingAmount: amount,
		QueryTime:       queryTime,
		SessionReused:   sessionReused,
		Message:         message,
	}, nil
}

// fetchBalance 先尝试复用缓存会话，不行则重新认证（恰好一次）。
func (s *Service) fetchBalance(ctx context.Context, identity string, isAuto bool) (amount float64, sessionReused bool, err error) {
	sess := s.store.GetAuth(identity)
	if s.portal.Valid(ctx, sess) {
		amount, err = s.portal.QueryBalance(ctx, sess)
		if err == nil {
			return amount, true, nil
		}
		if !portal.IsSessionExpired(err) {
			// 网络故障或门户业务错误：不是会话问题，不触发重新认证
			return 0, false, err
		}
		s.logger.Info("会话复用失败，将重新认证", zap.String("identity", identity), zap.Error(err))
		s.store.InvalidateAuth(identity)
	} else {
		s.store.InvalidateAuth(identity)
	}

	// 重新认证。自动查询可借用任一密码用户的凭据；
	// 手动查询只能用本人凭据，扫码用户无凭据可用。
	authIdentity := identity
	user := s.store.GetUser(identity)
	if user == nil || !user.HasCredentials() {
		if !isAuto {
			return 0, false, ErrLoginExpired
		}
		id, u := s.store.FindPasswordIdentity()
		if id == "" {
			return 0, false, ErrNoPasswordUser
		}
		authIdentity, user = id, u
	}

	sess, err = s.portal.Authenticate(ctx, user.Username, user.Password)
	if err != nil {
		return 0, false, err
	}
	s.store.SaveAuth(authIdentity, sess)

	amount, err = s.portal.QueryBalance(ctx, sess)
	if err != nil {
		if portal.IsSessionExpired(err) {
			// 刚认证完仍失效：不再发起第二次认证
			s.store.InvalidateAuth(authIdentity)
		}
		return 0, false, err
	}
	return amount, false, nil
}

// recheckIfSuspect 异常数据的有界重查：最多一次，只复用会话。
func (s *Service) recheckIfSuspect(ctx context.Context, identity string, amount float64) float64 {
	var prior *float64
	since := timeutil.Now().Add(-s.guard.Window()).Format(timeutil.DateTimeLayout)
	if rec, err := s.readings.LatestSince(since); err != nil {
		s.logger.Warn("查询历史数据失败", zap.Error(err))
	} else if rec != nil {
		prior = &rec.RemainingAmount
	}

	if !s.guard.ShouldRetry(amount, prior) {
		return amount
	}

	s.logger.Warn("检测到异常数据，稍后重新查询",
		zap.Float64("amount", amount),
		zap.Duration("delay", s.retry.Delay))
	s.sleep(s.retry.Delay)

	sess := s.store.GetAuth(identity)
	if !s.portal.Valid(ctx, sess) {
		s.logger.Info("会话已失效，无法进行重新查询")
		return amount
	}
	retried, err := s.portal.QueryBalance(ctx, sess)
	if err != nil {
		s.logger.Warn("重新查询失败", zap.Error(err))
		return amount
	}
	if s.retry.Accept(amount, retried) {
		s.logger.Info("重新查询结果不同，使用新结果", zap.Float64("retried", retried))
		return retried
	}
	s.logger.Info("重新查询结果相同，保留原值并标记可能异常")
	return amount
}

// Probe 校验某身份的缓存会话，探测失败时同步清除缓存。
func (s *Service) Probe(ctx context.Context, identity string) bool {
	sess := s.store.GetAuth(identity)
	if sess == nil {
		return false
	}
	if !s.portal.Valid(ctx, sess) {
		s.store.InvalidateAuth(identity)
		return false
	}
	return true
}

// IsSessionError 判断错误是否属于会话/凭据类，
// 命中时上层才应清除该身份的登录状态。
func IsSessionError(err error) bool {
	return errors.Is(err, ErrLoginExpired) ||
		errors.Is(err, ErrNotLoggedIn) ||
		portal.IsSessionExpired(err) ||
		portal.IsAuthError(err)
}
