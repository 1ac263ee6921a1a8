package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"solpay/internal/config"
)

var ErrConfirmTimeout = errors.New("等待链上确认超时")

// RPCClient 账本网络 RPC 客户端（JSON-RPC 2.0）
//
// 客户端只用到三类只读能力：取最新区块引用、轮询签名确认状态、
// 查询链上余额（仅展示用，应用余额以后端为准）
type RPCClient struct {
	url             string
	httpc           *http.Client
	confirmTimeout  time.Duration
	confirmInterval time.Duration
}

func NewRPCClient(cfg *config.ChainConfig) *RPCClient {
	return &RPCClient{
		url:             cfg.RPCURL,
		httpc:           &http.Client{Timeout: 30 * time.Second},
		confirmTimeout:  cfg.ConfirmTimeout(),
		confirmInterval: cfg.ConfirmInterval(),
	}
}

// LatestBlockhash 取最新区块引用，用于交易装配
func (c *RPCClient) LatestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", nil, &result); err != nil {
		return "", err
	}
	if result.Value.Blockhash == "" {
		return "", errors.New("RPC 返回空区块引用")
	}
	return result.Value.Blockhash, nil
}

// Balance 查询地址的链上余额（lamports）
// 仅用于展示，不参与任何结算判断
func (c *RPCClient) Balance(ctx context.Context, pubkey string) (int64, error) {
	var result struct {
		Value int64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []interface{}{pubkey}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// SignatureStatus 查询签名确认状态，未上链时返回空字符串
func (c *RPCClient) SignatureStatus(ctx context.Context, signature string) (string, error) {
	var result struct {
		Value []*struct {
			ConfirmationStatus string      `json:"confirmationStatus"`
			Err                interface{} `json:"err"`
		} `json:"value"`
	}
	params := []interface{}{[]string{signature}}
	if err := c.call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return "", err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return "", nil
	}
	if result.Value[0].Err != nil {
		return "", fmt.Errorf("链上交易执行失败: %v", result.Value[0].Err)
	}
	return result.Value[0].ConfirmationStatus, nil
}

// WaitForConfirmation 轮询等待交易确认
// 超时不代表交易失败，后端仍会独立验证，调用方据此决定是否继续流程
func (c *RPCClient) WaitForConfirmation(ctx context.Context, signature string) error {
	deadline := time.Now().Add(c.confirmTimeout)
	ticker := time.NewTicker(c.confirmInterval)
	defer ticker.Stop()

	for {
		status, err := c.SignatureStatus(ctx, signature)
		if err != nil {
			return err
		}
		if status == "confirmed" || status == "finalized" {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrConfirmTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("请求 RPC 节点失败: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("解析 RPC 响应失败: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("RPC 节点返回错误: code=%d, message=%s", envelope.Error.Code, envelope.Error.Message)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, result)
}
