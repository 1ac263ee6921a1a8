package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"solpay/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	keyBalanceSnapshot  = "solpay:snapshot:balance"
	keyInvoicesSnapshot = "solpay:snapshot:invoices"
)

var ErrSnapshotMiss = errors.New("快照不存在")

// SnapshotStore 页面级快照缓存
//
// 只为了避免首屏等待网络往返时一片空白：启动时用快照预热本地缓存，
// 短 TTL 自然过期。快照永远不比一次真实拉取更可信，
// 任何已知改变后端状态的操作之后都要 Clear
type SnapshotStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewSnapshotStore(rdb redis.Cmdable, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{rdb: rdb, ttl: ttl}
}

// SaveBalance 写余额快照，尽力而为，失败由调用方决定是否记录
func (s *SnapshotStore) SaveBalance(ctx context.Context, balance *model.Balance) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	data, err := json.Marshal(balance)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyBalanceSnapshot, data, s.ttl).Err()
}

func (s *SnapshotStore) LoadBalance(ctx context.Context) (*model.Balance, error) {
	if s == nil || s.rdb == nil {
		return nil, ErrSnapshotMiss
	}
	data, err := s.rdb.Get(ctx, keyBalanceSnapshot).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotMiss
		}
		return nil, err
	}
	var balance model.Balance
	if err := json.Unmarshal(data, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// SaveInvoices 写账单首页快照
func (s *SnapshotStore) SaveInvoices(ctx context.Context, invoices []*model.Invoice) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	data, err := json.Marshal(invoices)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyInvoicesSnapshot, data, s.ttl).Err()
}

func (s *SnapshotStore) LoadInvoices(ctx context.Context) ([]*model.Invoice, error) {
	if s == nil || s.rdb == nil {
		return nil, ErrSnapshotMiss
	}
	data, err := s.rdb.Get(ctx, keyInvoicesSnapshot).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotMiss
		}
		return nil, err
	}
	var invoices []*model.Invoice
	if err := json.Unmarshal(data, &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// Clear 删除全部快照
func (s *SnapshotStore) Clear(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, keyBalanceSnapshot, keyInvoicesSnapshot).Err()
}
