package chain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"solpay/internal/chain"
)

const (
	testFrom = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	testTo   = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func TestBuildTransfer(t *testing.T) {
	tx, err := chain.BuildTransfer("hash123", testFrom, testTo, 500_000_000, "topup")
	require.NoError(t, err)
	require.Equal(t, testFrom, tx.From)
	require.Equal(t, testTo, tx.To)
	require.Equal(t, int64(500_000_000), tx.Lamports)
	require.Equal(t, "hash123", tx.RecentBlockhash)
	require.Equal(t, "topup", tx.Memo)
}

func TestBuildTransfer_InvalidAmount(t *testing.T) {
	_, err := chain.BuildTransfer("hash123", testFrom, testTo, 0, "")
	require.ErrorIs(t, err, chain.ErrInvalidAmount)

	_, err = chain.BuildTransfer("hash123", testFrom, testTo, -1, "")
	require.ErrorIs(t, err, chain.ErrInvalidAmount)
}

func TestBuildTransfer_InvalidDestination(t *testing.T) {
	// 太短
	_, err := chain.BuildTransfer("hash123", testFrom, "abc", 100, "")
	require.ErrorIs(t, err, chain.ErrInvalidDestination)

	// 太长
	_, err = chain.BuildTransfer("hash123", testFrom, strings.Repeat("A", 45), 100, "")
	require.ErrorIs(t, err, chain.ErrInvalidDestination)

	// 含 base58 之外的字符（0、O、I、l 不在字符集内）
	_, err = chain.BuildTransfer("hash123", testFrom, strings.Repeat("0", 40), 100, "")
	require.ErrorIs(t, err, chain.ErrInvalidDestination)
}

func TestValidateTransfer_AmountCheckedFirst(t *testing.T) {
	// 金额和地址同时非法时先报金额，校验链条从最便宜的开始
	err := chain.ValidateTransfer("abc", 0)
	require.ErrorIs(t, err, chain.ErrInvalidAmount)
}
