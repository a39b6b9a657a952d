// Package ui 维护交易界面状态的单一事实源
package ui

import "sync"

// Modal 界面弹层状态
//
// 同一时刻只有一个弹层可见，用单枚举取代一组互相独立的
// 布尔开关，杜绝 loading 与 success 同时为真的矛盾组合。
type Modal int8

const (
	ModalNone           Modal = 0 // 无弹层
	ModalLoading        Modal = 1 // 交易进行中
	ModalSuccess        Modal = 2 // 申购成功
	ModalRedeemProgress Modal = 3 // 赎回处理中 (T+N 到账提示)
)

func (m Modal) String() string {
	switch m {
	case ModalNone:
		return "NONE"
	case ModalLoading:
		return "LOADING"
	case ModalSuccess:
		return "SUCCESS"
	case ModalRedeemProgress:
		return "REDEEM_PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// Snapshot 某一时刻的完整界面状态
type Snapshot struct {
	Modal       Modal
	AmountInput string
	Toasts      []string
}

// Coordinator 界面状态协调器
//
// 编排层通过它驱动弹层切换、输入框清空与 toast 提示，
// 界面层只读快照渲染。所有方法并发安全。
type Coordinator struct {
	mu          sync.RWMutex
	modal       Modal
	amountInput string
	toasts      []string
	listeners   []func(Snapshot)
}

// NewCoordinator 创建界面状态协调器
func NewCoordinator() *Coordinator {
	return &Coordinator{modal: ModalNone}
}

// ShowModal 切换弹层
func (c *Coordinator) ShowModal(m Modal) {
	c.mu.Lock()
	c.modal = m
	snap := c.snapshotLocked()
	listeners := c.listeners
	c.mu.Unlock()
	notify(listeners, snap)
}

// CloseModal 关闭当前弹层
func (c *Coordinator) CloseModal() {
	c.ShowModal(ModalNone)
}

// Modal 当前弹层
func (c *Coordinator) Modal() Modal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modal
}

// SetAmountInput 更新金额/份额输入
func (c *Coordinator) SetAmountInput(v string) {
	c.mu.Lock()
	c.amountInput = v
	snap := c.snapshotLocked()
	listeners := c.listeners
	c.mu.Unlock()
	notify(listeners, snap)
}

// ClearAmountInput 清空输入框 (交易成功后)
func (c *Coordinator) ClearAmountInput() {
	c.SetAmountInput("")
}

// Toast 追加一条 toast 提示
func (c *Coordinator) Toast(msg string) {
	c.mu.Lock()
	c.toasts = append(c.toasts, msg)
	snap := c.snapshotLocked()
	listeners := c.listeners
	c.mu.Unlock()
	notify(listeners, snap)
}

// DrainToasts 取走并清空积压的 toast
func (c *Coordinator) DrainToasts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.toasts
	c.toasts = nil
	return out
}

// Snapshot 当前界面状态快照
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// OnChange 注册状态变化监听
func (c *Coordinator) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Coordinator) snapshotLocked() Snapshot {
	toasts := make([]string, len(c.toasts))
	copy(toasts, c.toasts)
	return Snapshot{
		Modal:       c.modal,
		AmountInput: c.amountInput,
		Toasts:      toasts,
	}
}

func notify(listeners []func(Snapshot), snap Snapshot) {
	for _, fn := range listeners {
		fn(snap)
	}
}
