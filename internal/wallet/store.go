package wallet

import "sync"

// State 钱包连接状态快照
type State struct {
	Address   string
	Connected bool
}

// Store 进程级钱包连接器容器
//
// 连接器是进程内唯一的可变共享引用: 用户可能在任意异步等待期间
// 切换钱包或重连。调用方在每次使用前通过 Current() 重新读取，
// 不得跨 await 缓存旧引用。
type Store struct {
	mu        sync.RWMutex
	conn      Connector
	lastAddr  string
	listeners []func(State)
}

// NewStore 创建容器
func NewStore() *Store {
	return &Store{}
}

// Set 设置当前连接器 (连接或切换钱包时调用)，触发状态变更回调
//
// 断开 (conn 为 nil 或未连接) 时回调携带上一次连接的地址，
// 会话清理需要据此定位持久化记录。
func (s *Store) Set(conn Connector) {
	s.mu.Lock()
	s.conn = conn
	state := s.stateLocked()
	if state.Connected {
		s.lastAddr = state.Address
	} else {
		state.Address = s.lastAddr
		s.lastAddr = ""
	}
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// Clear 断开连接，触发状态变更回调
func (s *Store) Clear() {
	s.Set(nil)
}

// Current 获取当前连接器
//
// 连接器可能在上一次异步等待期间失效，每次签名调用前都必须
// 经由此方法重新检查连接状态。
func (s *Store) Current() (Connector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil || !s.conn.Connected() {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// State 当前连接状态快照
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() State {
	if s.conn == nil || !s.conn.Connected() {
		return State{}
	}
	return State{Address: s.conn.Address(), Connected: true}
}

// OnChange 注册连接状态变更回调 (会话引导靠它触发)
func (s *Store) OnChange(fn func(State)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
