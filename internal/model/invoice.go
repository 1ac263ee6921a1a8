package model

import (
	"time"
)

const (
	InvoiceStatusPending    = "PENDING"
	InvoiceStatusProcessing = "PROCESSING"
	InvoiceStatusPaid       = "PAID"
	InvoiceStatusCancelled  = "CANCELLED"
	InvoiceStatusExpired    = "EXPIRED"
)

// ValidStatusTransitions 账单状态流转表
//
// PENDING    -> PROCESSING（客户端上报链上签名后）
// PENDING    -> CANCELLED（用户主动取消，仅此一条路径）
// PENDING    -> EXPIRED（到期仍未支付）
// PROCESSING -> PAID（后端链上验证通过）
//
// PAID / CANCELLED / EXPIRED 为终态，不允许任何状态复活
var ValidStatusTransitions = map[string][]string{
	InvoiceStatusPending:    {InvoiceStatusProcessing, InvoiceStatusCancelled, InvoiceStatusExpired},
	InvoiceStatusProcessing: {InvoiceStatusPaid},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminalStatus 终态判断：终态账单不再参与轮询，也不可被本地修改
func IsTerminalStatus(status string) bool {
	switch status {
	case InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusExpired:
		return true
	}
	return false
}

// IsActiveStatus 活跃账单（非终态）：同一账户同时最多存在一张
func IsActiveStatus(status string) bool {
	return status == InvoiceStatusPending || status == InvoiceStatusProcessing
}

// Invoice 充值账单
// 由后端创建并分配 ID，客户端只持有只读缓存副本
type Invoice struct {
	ID        string     `json:"id"`
	Lamports  int64      `json:"lamports"`  // 充值金额（最小链上单位）
	ToAddress string     `json:"toAddress"` // 收款地址
	Memo      string     `json:"memo,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

func (i *Invoice) IsTerminal() bool {
	return IsTerminalStatus(i.Status)
}

func (i *Invoice) IsActive() bool {
	return IsActiveStatus(i.Status)
}
