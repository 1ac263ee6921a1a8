package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"solpay/internal/config"
)

// ErrUserRejected 用户在钱包中拒绝了签名
// 这是预期内的正常结果，不是系统故障：账单保持 PENDING，可重试或取消
var ErrUserRejected = errors.New("用户拒绝签名")

// Agent 外部签名代理（钱包）客户端
// 私钥由用户侧持有，本进程只递交待签交易、取回链上签名
type Agent struct {
	baseURL string
	httpc   *http.Client
}

func NewAgent(cfg *config.AgentConfig) *Agent {
	return &Agent{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.Timeout()},
	}
}

// PublicKey 取钱包地址
func (a *Agent) PublicKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/pubkey", nil)
	if err != nil {
		return "", err
	}

	resp, err := a.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求签名代理失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("签名代理返回错误: status=%d", resp.StatusCode)
	}

	var parsed struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("解析签名代理响应失败: %w", err)
	}
	return parsed.Pubkey, nil
}

// SignAndSend 请求用户授权签名并提交交易
//
// 三种结局：拿到签名；用户拒绝（ErrUserRejected，不重试同一笔交易）；
// 其他提交故障（可由调用方重新发起一轮完整结算流程）
func (a *Agent) SignAndSend(ctx context.Context, tx *Transaction) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{"transaction": tx})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/sign-and-send", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求签名代理失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("读取签名代理响应失败: %w", err)
	}

	if resp.StatusCode == http.StatusConflict || isUserRejection(data) {
		return "", ErrUserRejected
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("签名代理返回错误: status=%d, body=%s", resp.StatusCode, string(data))
	}

	var parsed struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("解析签名代理响应失败: %w", err)
	}
	if parsed.Signature == "" {
		return "", errors.New("签名代理返回空签名")
	}
	return parsed.Signature, nil
}

func isUserRejection(body []byte) bool {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false
	}
	return parsed.Error == "user_rejected"
}
