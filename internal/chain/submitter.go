package chain

import (
	"context"
)

// Submitter 交易构装与提交
// 把"装配 -> 签名提交 -> 等确认"拆成独立步骤暴露，
// 上层结算流程需要对每一步的失败单独定性（可重试 / 用户拒绝 / 仅记录）
type Submitter struct {
	rpc   *RPCClient
	agent *Agent
}

func NewSubmitter(rpc *RPCClient, agent *Agent) *Submitter {
	return &Submitter{rpc: rpc, agent: agent}
}

// BuildTransfer 装配转账交易
// 参数校验先于任何网络访问，畸形交易不会走到签名代理面前
func (s *Submitter) BuildTransfer(ctx context.Context, to string, lamports int64, memo string) (*Transaction, error) {
	if err := ValidateTransfer(to, lamports); err != nil {
		return nil, err
	}

	from, err := s.agent.PublicKey(ctx)
	if err != nil {
		return nil, err
	}

	blockhash, err := s.rpc.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	return BuildTransfer(blockhash, from, to, lamports, memo)
}

// SignAndSend 交由签名代理授权并提交
func (s *Submitter) SignAndSend(ctx context.Context, tx *Transaction) (string, error) {
	return s.agent.SignAndSend(ctx, tx)
}

// WaitForConfirmation 等待链上确认
func (s *Submitter) WaitForConfirmation(ctx context.Context, signature string) error {
	return s.rpc.WaitForConfirmation(ctx, signature)
}
