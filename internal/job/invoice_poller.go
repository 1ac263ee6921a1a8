package job

import (
	"context"
	"log"
	"time"

	"solpay/internal/dedup"
	"solpay/internal/store"
)

// InvoicePoller 账单轮询任务
//
// 后端没有推送通道，账单从 PROCESSING 变成 PAID 只能靠拉取发现。
// 只要存在非终态账单就按固定间隔重拉列表；全部进入终态后不再打后端，
// 会话销毁时随 ctx 一起退出
type InvoicePoller struct {
	invoices *store.InvoiceStore
	balance  *store.BalanceStore
	caches   *dedup.Registry
	stopCh   chan struct{}
	interval time.Duration
}

func NewInvoicePoller(invoices *store.InvoiceStore, balance *store.BalanceStore, caches *dedup.Registry, interval time.Duration) *InvoicePoller {
	return &InvoicePoller{
		invoices: invoices,
		balance:  balance,
		caches:   caches,
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

func (j *InvoicePoller) Start(ctx context.Context) {
	log.Println("[InvoicePoller] 账单轮询任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[InvoicePoller] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[InvoicePoller] 任务停止")
			return
		case <-ticker.C:
			j.poll(ctx)
		}
	}
}

func (j *InvoicePoller) Stop() {
	close(j.stopCh)
}

func (j *InvoicePoller) poll(ctx context.Context) {
	// 没有活跃账单就不打后端
	if !j.invoices.HasActive() {
		return
	}

	if err := j.invoices.Refresh(ctx); err != nil {
		log.Printf("[InvoicePoller] 刷新账单列表失败: %v", err)
		return
	}

	// 有账单在本轮进入终态（已支付/已过期），余额大概率变了，刷新一次
	if !j.invoices.HasActive() {
		log.Println("[InvoicePoller] 所有账单已进入终态，刷新余额并停止轮询后端")
		if err := j.balance.Refresh(ctx); err != nil {
			log.Printf("[InvoicePoller] 刷新余额失败: %v", err)
		}
		j.caches.ClearAll()
	}
}
