package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"solpay/internal/backend"
	"solpay/internal/infrastructure/cache"
	"solpay/internal/model"
)

// BalanceStore 余额缓存仓库
//
// 余额由后端独家计算，这里只保存最近一次成功拉取的快照。
// 本仓库自身不做任何轮询，什么时候刷新由调用方决定：
// 任何已知或疑似改变余额的操作（账单支付、取消、流水中出现扣费）之后都应刷新
type BalanceStore struct {
	mu        sync.RWMutex
	backend   *backend.Client
	snapshots *cache.SnapshotStore

	balance   *model.Balance
	fetchedAt time.Time
}

func NewBalanceStore(client *backend.Client, snapshots *cache.SnapshotStore) *BalanceStore {
	return &BalanceStore{
		backend:   client,
		snapshots: snapshots,
	}
}

// Warm 用页面快照预热，仅在尚未拉取过时生效
func (s *BalanceStore) Warm(ctx context.Context) {
	balance, err := s.snapshots.LoadBalance(ctx)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance == nil {
		s.balance = balance
	}
}

// Refresh 无条件重新拉取余额快照并整体替换缓存
// 失败时保留上一次成功的值
func (s *BalanceStore) Refresh(ctx context.Context) error {
	balance, err := s.backend.GetBalance(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.balance = balance
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	_ = s.snapshots.SaveBalance(ctx, balance)
	return nil
}

// Balance 当前缓存副本，从未成功拉取过时返回 nil，不触发网络请求
func (s *BalanceStore) Balance() *model.Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.balance == nil {
		return nil
	}
	c := *s.balance
	return &c
}

// Status 账户状态，未知时返回空字符串
func (s *BalanceStore) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.balance == nil {
		return ""
	}
	return s.balance.Status
}

// FormattedSol 展示用余额文本
func (s *BalanceStore) FormattedSol() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.balance == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f SOL", s.balance.SolBalance)
}

// FormattedUsd 展示用法币文本
func (s *BalanceStore) FormattedUsd() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.balance == nil {
		return "-"
	}
	return fmt.Sprintf("$%.2f", s.balance.UsdBalance)
}

// FetchedAt 最近一次成功拉取时间
func (s *BalanceStore) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}
