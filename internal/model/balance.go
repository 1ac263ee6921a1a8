package model

const (
	AccountStatusActive   = "active"
	AccountStatusInactive = "inactive"
	AccountStatusBanned   = "banned"
)

// Balance 账户余额快照
// 余额由后端独家计算，客户端任何本地算术都不作数，只能整体刷新替换
type Balance struct {
	SolBalance float64 `json:"solBalance"` // 链上单位折算后的余额
	UsdBalance float64 `json:"usdBalance"` // 法币展示值
	Status     string  `json:"status"`
}
