package dedup

import (
	"time"

	"solpay/internal/model"
)

// Registry 进程内共享的去重缓存集合
// 每种结果类型一个实例；改变后端状态的操作完成后调用 ClearAll 整体失效
type Registry struct {
	Balance      *Cooldown[*model.Balance]
	Invoices     *Cooldown[[]*model.Invoice]
	Journal      *Cooldown[[]*model.JournalEntry]
	ChainBalance *Cooldown[int64]
}

func NewRegistry(window time.Duration) *Registry {
	return &Registry{
		Balance:      NewCooldown[*model.Balance](window),
		Invoices:     NewCooldown[[]*model.Invoice](window),
		Journal:      NewCooldown[[]*model.JournalEntry](window),
		ChainBalance: NewCooldown[int64](window),
	}
}

func (r *Registry) ClearAll() {
	r.Balance.ClearAll()
	r.Invoices.ClearAll()
	r.Journal.ClearAll()
	r.ChainBalance.ClearAll()
}
