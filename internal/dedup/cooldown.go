package dedup

import (
	"context"
	"sync"
	"time"
)

// ============================================================================
// 请求去重（冷却）缓存
// ============================================================================
//
// 【为什么需要去重缓存？】
//
// 同一个读操作会被多个入口在短时间内重复触发：
//   - 用户手动刷新
//   - 账单轮询定时器
//   - 结算完成后的对账刷新
//
// 没有去重时，这些触发各自打一次后端，形成放大；
// 有了冷却窗口 W：窗口内的重复调用直接返回上次成功结果，窗口外正常穿透。
//
// 【边界】
// 1. 只缓存成功结果。失败直接向上抛，键位留空，下一次调用立即重试
// 2. 去重只是短期防重放，不是事实源——任何改变状态的操作之后必须显式清除
// 3. 键是 操作枚举 + 作用域枚举 的结构体，不做字符串拼接，杜绝碰撞
//
// ============================================================================

// Op 逻辑操作名
type Op string

const (
	OpBalance      Op = "balance"
	OpInvoiceList  Op = "invoice_list"
	OpJournal      Op = "journal"
	OpChainBalance Op = "chain_balance"
)

// Scope 调用方上下文，默认全局
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopePage   Scope = "page"
	ScopeModal  Scope = "modal"
)

// Key 去重键
type Key struct {
	Op    Op
	Scope Scope
}

// Options 单次调用的去重行为
type Options struct {
	Scope           Scope // 为空视为全局
	AllowCrossScope bool  // 允许用全局作用域的新鲜结果喂给本作用域
	ForceRefresh    bool  // 无条件穿透，仍会回填缓存
}

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cooldown 带冷却窗口的去重缓存，按结果类型参数化
type Cooldown[T any] struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[Key]entry[T]
}

func NewCooldown[T any](window time.Duration) *Cooldown[T] {
	return &Cooldown[T]{
		window:  window,
		entries: make(map[Key]entry[T]),
	}
}

// Debounce 去重执行
// 命中新鲜缓存直接返回；否则执行 fn，仅成功结果回填（本作用域 + 全局各一份）
func (c *Cooldown[T]) Debounce(ctx context.Context, op Op, fn func(context.Context) (T, error), opts Options) (T, error) {
	scope := opts.Scope
	if scope == "" {
		scope = ScopeGlobal
	}
	key := Key{Op: op, Scope: scope}
	global := Key{Op: op, Scope: ScopeGlobal}

	if !opts.ForceRefresh {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok && time.Since(e.fetchedAt) < c.window {
			c.mu.Unlock()
			return e.value, nil
		}
		if opts.AllowCrossScope && scope != ScopeGlobal {
			if e, ok := c.entries[global]; ok && time.Since(e.fetchedAt) < c.window {
				// 用全局结果播种本作用域
				c.entries[key] = e
				c.mu.Unlock()
				return e.value, nil
			}
		}
		c.mu.Unlock()
	}

	value, err := fn(ctx)
	if err != nil {
		// 失败不缓存，下一次调用立即重试
		var zero T
		return zero, err
	}

	e := entry[T]{value: value, fetchedAt: time.Now()}
	c.mu.Lock()
	c.entries[key] = e
	c.entries[global] = e
	c.mu.Unlock()
	return value, nil
}

// ClearKey 清除某个操作在所有作用域下的缓存
func (c *Cooldown[T]) ClearKey(op Op) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.Op == op {
			delete(c.entries, k)
		}
	}
}

// ClearScope 清除某个作用域下的全部缓存
func (c *Cooldown[T]) ClearScope(scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.Scope == scope {
			delete(c.entries, k)
		}
	}
}

// ClearAll 清空
func (c *Cooldown[T]) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]entry[T])
}
