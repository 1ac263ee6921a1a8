package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"solpay/internal/config"
	"solpay/internal/model"
	"solpay/pkg/idgen"
)

var (
	ErrInvoiceNotFound = errors.New("账单不存在")
	ErrInvalidAmount   = errors.New("充值金额必须大于 0")
)

// APIError 后端拒绝类错误，携带服务端返回的可读信息
// 网络/后端失败只会以该类型或 sentinel 错误返回，调用方的旧缓存不受影响
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("后端返回错误: status=%d, message=%s", e.StatusCode, e.Message)
}

// Client 后端账务服务客户端
//
// 后端是余额/账单/流水的唯一事实源，本客户端不做任何本地推算，
// 所有写操作携带 X-Request-ID 幂等键，重复上报不会产生第二次状态变更
type Client struct {
	baseURL string
	httpc   *http.Client
	gen     *idgen.Snowflake
}

func NewClient(cfg *config.BackendConfig, gen *idgen.Snowflake) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.Timeout()},
		gen:     gen,
	}
}

// GetBalance 拉取余额快照
func (c *Client) GetBalance(ctx context.Context) (*model.Balance, error) {
	var balance model.Balance
	if err := c.do(ctx, http.MethodGet, "/balance", nil, nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// ListJournal 拉取一页流水
func (c *Client) ListJournal(ctx context.Context, offset, limit int) ([]*model.JournalEntry, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Journal []*model.JournalEntry `json:"journal"`
	}
	if err := c.do(ctx, http.MethodGet, "/journal", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Journal, nil
}

// PrepareInvoice 请求后端开具新账单
// 金额合法性在发起网络请求之前校验
func (c *Client) PrepareInvoice(ctx context.Context, lamports int64) (*model.Invoice, error) {
	if lamports <= 0 {
		return nil, ErrInvalidAmount
	}

	body := map[string]interface{}{"amount": lamports}
	var resp struct {
		Invoice   string    `json:"invoice"`
		Lamports  int64     `json:"lamports"`
		ToAddress string    `json:"toAddress"`
		Memo      string    `json:"memo"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := c.do(ctx, http.MethodPost, "/invoices/prepare", nil, body, &resp); err != nil {
		return nil, err
	}

	return &model.Invoice{
		ID:        resp.Invoice,
		Lamports:  resp.Lamports,
		ToAddress: resp.ToAddress,
		Memo:      resp.Memo,
		Status:    model.InvoiceStatusPending,
		CreatedAt: time.Now(),
		ExpiresAt: resp.ExpiresAt,
	}, nil
}

// CancelInvoice 取消账单，仅后端状态为 PENDING 时会成功
func (c *Client) CancelInvoice(ctx context.Context, id string) error {
	body := map[string]interface{}{"id": id}
	return c.do(ctx, http.MethodPost, "/invoices/cancel", nil, body, nil)
}

// ListInvoices 拉取一页账单，后端按创建时间倒序返回
func (c *Client) ListInvoices(ctx context.Context, offset, limit int) ([]*model.Invoice, int64, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Invoices []*model.Invoice `json:"invoices"`
		Total    int64            `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, "/invoices", query, nil, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Invoices, resp.Total, nil
}

// GetInvoice 查询单张账单
// 部分后端版本会把账单包在 invoice 键下返回，这里做防御性解包
func (c *Client) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/invoices/"+url.PathEscape(id), nil, nil, &raw); err != nil {
		return nil, err
	}

	var wrapper struct {
		Invoice json.RawMessage `json:"invoice"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Invoice) > 0 && wrapper.Invoice[0] == '{' {
		raw = wrapper.Invoice
	}

	var invoice model.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, fmt.Errorf("解析账单失败: %w", err)
	}
	return &invoice, nil
}

// CompleteInvoice 上报链上签名
// 接口只返回确认收到，不代表结算完成，后端会异步做链上验证
func (c *Client) CompleteInvoice(ctx context.Context, id, signature string) error {
	body := map[string]interface{}{"id": id, "signature": signature}
	return c.do(ctx, http.MethodPost, "/invoices/complete", nil, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet && c.gen != nil {
		req.Header.Set("X-Request-ID", c.gen.RequestID())
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("请求后端失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrInvoiceNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析后端响应失败: %w", err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return "unknown"
	}

	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return string(data)
}
