package chain

import (
	"errors"
)

var (
	ErrInvalidDestination = errors.New("收款地址不合法")
	ErrInvalidAmount      = errors.New("转账金额必须大于 0")
)

// base58 字符集（不含 0、O、I、l）
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Transaction 待签名的转账交易
// 本进程不持有私钥，交易装配完成后交给外部签名代理处理
type Transaction struct {
	RecentBlockhash string `json:"recentBlockhash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Lamports        int64  `json:"lamports"`
	Memo            string `json:"memo,omitempty"`
}

// ValidateTransfer 转账参数快速校验
//
// 【关键点】必须在请求外部签名之前完成：
// 把一笔明显畸形的交易递给签名代理，用户会看到一个无法理解的授权弹窗
func ValidateTransfer(to string, lamports int64) error {
	if lamports <= 0 {
		return ErrInvalidAmount
	}
	if !isValidAddress(to) {
		return ErrInvalidDestination
	}
	return nil
}

// BuildTransfer 装配转账交易
func BuildTransfer(blockhash, from, to string, lamports int64, memo string) (*Transaction, error) {
	if err := ValidateTransfer(to, lamports); err != nil {
		return nil, err
	}
	if !isValidAddress(from) {
		return nil, ErrInvalidDestination
	}

	return &Transaction{
		RecentBlockhash: blockhash,
		From:            from,
		To:              to,
		Lamports:        lamports,
		Memo:            memo,
	}, nil
}

func isValidAddress(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 {
		return false
	}
	for _, c := range addr {
		if !isBase58Char(byte(c)) {
			return false
		}
	}
	return true
}

func isBase58Char(c byte) bool {
	for i := 0; i < len(base58Alphabet); i++ {
		if base58Alphabet[i] == c {
			return true
		}
	}
	return false
}
