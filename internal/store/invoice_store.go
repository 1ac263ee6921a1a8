package store

import (
	"context"
	"errors"
	"sync"

	"solpay/internal/backend"
	"solpay/internal/infrastructure/cache"
	"solpay/internal/model"
)

var (
	// ErrPendingInvoiceExists 存在未完成账单时拒绝再开新账单
	// 本仓库自身不做并发串行化，前置条件由调用方在发起网络请求前检查
	ErrPendingInvoiceExists = errors.New("已存在未完成的充值账单")

	// ErrCancelNotAllowed 只有 PENDING 状态的账单可以取消，终态账单不可复活
	ErrCancelNotAllowed = errors.New("当前状态的账单不可取消")

	ErrInvoiceUnknown = errors.New("本地缓存中没有该账单")
)

// InvoiceStore 账单缓存仓库
//
// 后端是账单状态的唯一事实源；这里只持有按后端排序（最新在前）的分页缓存。
// 网络失败只上抛错误，绝不清掉已有的有效缓存
type InvoiceStore struct {
	mu        sync.RWMutex
	backend   *backend.Client
	snapshots *cache.SnapshotStore
	pageSize  int

	invoices []*model.Invoice
	total    int64
	cursor   int // 下一次追加拉取的起点
}

func NewInvoiceStore(client *backend.Client, snapshots *cache.SnapshotStore, pageSize int) *InvoiceStore {
	return &InvoiceStore{
		backend:   client,
		snapshots: snapshots,
		pageSize:  pageSize,
	}
}

// Warm 用页面快照预热，仅在本地缓存为空时生效
// 快照数据只用来撑起首屏，第一次真实拉取会整体替换它
func (s *InvoiceStore) Warm(ctx context.Context) {
	invoices, err := s.snapshots.LoadInvoices(ctx)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.invoices) == 0 {
		s.invoices = invoices
	}
}

// Create 请求后端开具新账单
// 金额校验发生在任何网络请求之前；成功后新账单插入缓存头部
func (s *InvoiceStore) Create(ctx context.Context, lamports int64) (*model.Invoice, error) {
	invoice, err := s.backend.PrepareInvoice(ctx, lamports)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.invoices = append([]*model.Invoice{invoice}, s.invoices...)
	s.total++
	s.mu.Unlock()

	return copyInvoice(invoice), nil
}

// Cancel 取消账单
// 仅本地状态为 PENDING 时放行；成功后乐观标记为已取消，再触发整页刷新，
// 乐观状态的生命周期不会超过下一次完整刷新
func (s *InvoiceStore) Cancel(ctx context.Context, id string) error {
	s.mu.RLock()
	var target *model.Invoice
	for _, inv := range s.invoices {
		if inv.ID == id {
			target = inv
			break
		}
	}
	s.mu.RUnlock()

	if target == nil {
		return ErrInvoiceUnknown
	}
	if target.Status != model.InvoiceStatusPending {
		return ErrCancelNotAllowed
	}

	if err := s.backend.CancelInvoice(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	for _, inv := range s.invoices {
		if inv.ID == id && model.CanTransitionTo(inv.Status, model.InvoiceStatusCancelled) {
			inv.Status = model.InvoiceStatusCancelled
		}
	}
	s.mu.Unlock()

	// 对账刷新失败不影响取消本身，乐观状态保留到下一次成功刷新
	_ = s.Refresh(ctx)
	return nil
}

// List 拉取一页账单
// reset 为真时从 0 开始整体替换缓存，否则按游标追加；失败保持旧缓存不动
func (s *InvoiceStore) List(ctx context.Context, offset, limit int, reset bool) ([]*model.Invoice, error) {
	if reset {
		offset = 0
	}

	invoices, total, err := s.backend.ListInvoices(ctx, offset, limit)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if reset {
		s.invoices = invoices
		s.cursor = len(invoices)
	} else {
		s.invoices = append(s.invoices, invoices...)
		s.cursor = offset + len(invoices)
	}
	s.total = total
	snapshot := copyInvoices(s.invoices)
	s.mu.Unlock()

	if reset {
		_ = s.snapshots.SaveInvoices(ctx, snapshot)
	}

	return copyInvoices(invoices), nil
}

// Refresh 整页刷新，等价于 List(0, pageSize, reset=true)
func (s *InvoiceStore) Refresh(ctx context.Context) error {
	_, err := s.List(ctx, 0, s.pageSize, true)
	return err
}

// Invalidate 清掉持久化快照并强制刷新
// 任何已知改变后端账单状态的操作（开单、取消、上报完成）之后必须调用
func (s *InvoiceStore) Invalidate(ctx context.Context) error {
	_ = s.snapshots.Clear(ctx)
	return s.Refresh(ctx)
}

// FirstPending 第一张待支付账单，纯缓存计算
func (s *InvoiceStore) FirstPending() *model.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invoices {
		if inv.Status == model.InvoiceStatusPending {
			return copyInvoice(inv)
		}
	}
	return nil
}

// Processing 所有处理中的账单，纯缓存计算
func (s *InvoiceStore) Processing() []*model.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.Invoice
	for _, inv := range s.invoices {
		if inv.Status == model.InvoiceStatusProcessing {
			result = append(result, copyInvoice(inv))
		}
	}
	return result
}

// Has 账单是否存在于本地缓存
func (s *InvoiceStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invoices {
		if inv.ID == id {
			return true
		}
	}
	return false
}

// HasActive 是否存在活跃（PENDING / PROCESSING）账单
// 开新账单的前置条件与轮询的停止条件都依赖它
func (s *InvoiceStore) HasActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invoices {
		if inv.IsActive() {
			return true
		}
	}
	return false
}

// Invoices 当前缓存的只读副本
func (s *InvoiceStore) Invoices() []*model.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyInvoices(s.invoices)
}

func (s *InvoiceStore) Total() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Cursor 下一次追加拉取的起点
func (s *InvoiceStore) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

func copyInvoice(inv *model.Invoice) *model.Invoice {
	c := *inv
	return &c
}

func copyInvoices(invoices []*model.Invoice) []*model.Invoice {
	result := make([]*model.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		result = append(result, copyInvoice(inv))
	}
	return result
}
