package session

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reeedirect/billing/internal/portal"
)

// Store 身份键到用户/认证会话的存取接口。
// 注入到查询与认证路径，便于用假实现做单元测试。
type Store interface {
	GetUser(identity string) *User
	PutUser(u *User)
	Touch(identity string)
	DeleteUser(identity string)

	GetAuth(identity string) *portal.Session
	SaveAuth(identity string, s *portal.Session)
	InvalidateAuth(identity string)

	AnyLoggedIn() bool
	FindPasswordIdentity() (string, *User)
	PasswordIdentities() []string
	Clear()
}

type entry struct {
	user *User
	auth *portal.Session
	elem *list.Element // 在LRU链表中的位置，链表头为最久未活动
}

// MemoryStore 进程内会话存储。
// 超出并发上限时按最久未活动淘汰；淘汰与过期都会级联清除认证会话。
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List // 存identity，Front最旧 Back最新
	maxUsers int
	expire   time.Duration
	logger   *zap.Logger
}

// NewMemoryStore creates a store capped at maxUsers with the given
// inactivity expiry.
func NewMemoryStore(maxUsers int, expire time.Duration, logger *zap.Logger) *MemoryStore {
	if maxUsers <= 0 {
		maxUsers = 5
	}
	if expire <= 0 {
		expire = 7 * 24 * time.Hour
	}
	return &MemoryStore{
		entries:  make(map[string]*entry),
		lru:      list.New(),
		maxUsers: maxUsers,
		expire:   expire,
		logger:   logger,
	}
}

// GetUser 返回身份对应的用户会话，不存在或已过期返回nil。
func (s *MemoryStore) GetUser(identity string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	e, ok := s.entries[identity]
	if !ok || e.user == nil {
		return nil
	}
	u := *e.user
	return &u
}

// PutUser 写入用户会话并刷新活动时间。
// 新身份且已达上限时，先淘汰最久未活动的身份（连同其认证会话）。
func (s *MemoryStore) PutUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	e, ok := s.entries[u.Identity]
	if !ok {
		if len(s.entries) >= s.maxUsers {
			s.evictOldestLocked()
		}
		e = &entry{}
		e.elem = s.lru.PushBack(u.Identity)
		s.entries[u.Identity] = e
	} else {
		s.lru.MoveToBack(e.elem)
	}

	cp := *u
	cp.LastActivity = time.Now()
	e.user = &cp
}

// Touch 刷新活动时间，身份不存在时为空操作。
func (s *MemoryStore) Touch(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[identity]
	if !ok || e.user == nil {
		return
	}
	e.user.LastActivity = time.Now()
	s.lru.MoveToBack(e.elem)
}

// DeleteUser 删除用户会话并级联清除认证会话。
func (s *MemoryStore) DeleteUser(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(identity)
}

// GetAuth 返回身份对应的认证会话，没有或已标记失效返回nil。
func (s *MemoryStore) GetAuth(identity string) *portal.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[identity]
	if !ok || e.auth == nil || !e.auth.Valid {
		return nil
	}
	return e.auth
}

// SaveAuth 整体替换认证会话（从不原地修改旧记录）。
func (s *MemoryStore) SaveAuth(identity string, sess *portal.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[identity]
	if !ok {
		e = &entry{}
		e.elem = s.lru.PushBack(identity)
		s.entries[identity] = e
	}
	e.auth = sess
	if s.logger != nil {
		s.logger.Info("认证会话已保存", zap.String("identity", identity))
	}
}

// InvalidateAuth 丢弃认证会话，保留用户会话。
func (s *MemoryStore) InvalidateAuth(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[identity]; ok {
		e.auth = nil
	}
}

// AnyLoggedIn 是否存在任何已登录用户。
func (s *MemoryStore) AnyLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	for _, e := range s.entries {
		if e.user != nil && e.user.IsLoggedIn {
			return true
		}
	}
	return false
}

// FindPasswordIdentity 返回任意一个持有密码凭据的已登录身份，
// 供定时任务和无指定身份的重新认证使用。
func (s *MemoryStore) FindPasswordIdentity() (string, *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	// 从最近活动的身份往回找
	for elem := s.lru.Back(); elem != nil; elem = elem.Prev() {
		identity := elem.Value.(string)
		e := s.entries[identity]
		if e != nil && e.user != nil && e.user.IsLoggedIn && e.user.HasCredentials() {
			u := *e.user
			return identity, &u
		}
	}
	return "", nil
}

// PasswordIdentities 返回全部持有密码凭据的已登录身份，
// 最近活动在前。定时任务逐个探测其认证会话。
func (s *MemoryStore) PasswordIdentities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	var out []string
	for elem := s.lru.Back(); elem != nil; elem = elem.Prev() {
		identity := elem.Value.(string)
		e := s.entries[identity]
		if e != nil && e.user != nil && e.user.IsLoggedIn && e.user.HasCredentials() {
			out = append(out, identity)
		}
	}
	return out
}

// Clear 清空全部会话（定时任务遇到会话类错误时的兜底）。
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.lru.Init()
}

// removeLocked 同时删除用户会话与认证会话。调用方须持锁。
func (s *MemoryStore) removeLocked(identity string) {
	e, ok := s.entries[identity]
	if !ok {
		return
	}
	s.lru.Remove(e.elem)
	delete(s.entries, identity)
}

// sweepLocked 清理超过不活动窗口的会话。登录中途失败会留下
// 只有认证会话的条目，同样按时间清理，不让它们占用用户名额。
// 调用方须持锁。
func (s *MemoryStore) sweepLocked() {
	cutoff := time.Now().Add(-s.expire)
	for elem := s.lru.Front(); elem != nil; {
		next := elem.Next()
		identity := elem.Value.(string)
		e := s.entries[identity]
		var stale bool
		if e != nil && e.user != nil {
			stale = e.user.LastActivity.Before(cutoff)
		} else if e != nil {
			stale = e.auth == nil || e.auth.LastUpdate.Before(cutoff)
		}
		if stale {
			if s.logger != nil {
				s.logger.Info("清理过期会话", zap.String("identity", identity))
			}
			s.removeLocked(identity)
		}
		elem = next
	}
}

// evictOldestLocked 淘汰最久未活动的身份。调用方须持锁。
func (s *MemoryStore) evictOldestLocked() {
	front := s.lru.Front()
	if front == nil {
		return
	}
	identity := front.Value.(string)
	if s.logger != nil {
		s.logger.Info("达到最大用户数限制，移除最久未活动用户", zap.String("identity", identity))
	}
	s.removeLocked(identity)
}
