package model

import (
	"time"
)

const (
	JournalKindDeposit    = "deposit"
	JournalKindWithdrawal = "withdrawal"
	JournalKindCall       = "call"
	JournalKindSMS        = "sms"
	JournalKindOther      = "other"
)

// JournalEntry 账户流水
//
// 【重要】流水设计原则：
// 1. 由后端签发，客户端视角只追加、不修改、不删除
// 2. 金额带符号（入账为正，出账为负）
// 3. 充值流水通过 reference 关联链上交易签名，便于对账
type JournalEntry struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"`
	Lamports  int64        `json:"lamports"`
	CreatedAt time.Time    `json:"createdAt"`
	Reference string       `json:"reference,omitempty"` // 链上交易签名等外部引用
	Meta      *JournalMeta `json:"meta,omitempty"`
}

// JournalMeta 使用类流水（通话/短信）附带的方向与状态
type JournalMeta struct {
	Direction string `json:"direction,omitempty"`
	Status    string `json:"status,omitempty"`
}
