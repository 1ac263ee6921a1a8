package handler

import (
	"context"
	"errors"
	"strconv"

	"solpay/internal/backend"
	"solpay/internal/chain"
	"solpay/internal/dedup"
	"solpay/internal/model"
	"solpay/internal/settle"
	"solpay/internal/store"
	"solpay/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 本地接口处理器
// 界面进程通过这组接口读缓存、发起充值；所有依赖在启动时构造一次注入进来
type Handler struct {
	invoices *store.InvoiceStore
	balance  *store.BalanceStore
	backend  *backend.Client
	orch     *settle.Orchestrator
	rpc      *chain.RPCClient
	agent    *chain.Agent
	caches   *dedup.Registry
	pageSize int
}

func NewHandler(
	invoices *store.InvoiceStore,
	balance *store.BalanceStore,
	client *backend.Client,
	orch *settle.Orchestrator,
	rpc *chain.RPCClient,
	agent *chain.Agent,
	caches *dedup.Registry,
	pageSize int,
) *Handler {
	return &Handler{
		invoices: invoices,
		balance:  balance,
		backend:  client,
		orch:     orch,
		rpc:      rpc,
		agent:    agent,
		caches:   caches,
		pageSize: pageSize,
	}
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询余额（走去重缓存，force=true 强制穿透）
// GET /api/v1/account/balance?force=&scope=
func (h *Handler) GetBalance(c *gin.Context) {
	force := c.Query("force") == "true"
	scope := dedup.Scope(c.Query("scope"))

	balance, err := h.caches.Balance.Debounce(c.Request.Context(), dedup.OpBalance,
		func(ctx context.Context) (*model.Balance, error) {
			if err := h.balance.Refresh(ctx); err != nil {
				return nil, err
			}
			return h.balance.Balance(), nil
		},
		dedup.Options{Scope: scope, AllowCrossScope: true, ForceRefresh: force},
	)
	if err != nil {
		// 刷新失败时旧缓存仍可用，界面不至于空白
		if cached := h.balance.Balance(); cached != nil {
			response.Success(c, gin.H{
				"solBalance": cached.SolBalance,
				"usdBalance": cached.UsdBalance,
				"status":     cached.Status,
				"stale":      true,
			})
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"solBalance": balance.SolBalance,
		"usdBalance": balance.UsdBalance,
		"status":     balance.Status,
		"display":    h.balance.FormattedSol(),
	})
}

// GetJournal 查询账户流水
// GET /api/v1/account/journal?offset=&limit=
func (h *Handler) GetJournal(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.pageSize)))

	var entries []*model.JournalEntry
	var err error
	if offset == 0 {
		// 只有首页值得去重，翻页请求各不相同
		entries, err = h.caches.Journal.Debounce(c.Request.Context(), dedup.OpJournal,
			func(ctx context.Context) ([]*model.JournalEntry, error) {
				return h.backend.ListJournal(ctx, 0, limit)
			},
			dedup.Options{},
		)
	} else {
		entries, err = h.backend.ListJournal(c.Request.Context(), offset, limit)
	}
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"journal": entries,
		"offset":  offset,
		"limit":   limit,
	})
}

// GetChainBalance 查询钱包链上余额（仅展示用，非应用余额）
// GET /api/v1/account/chain-balance
func (h *Handler) GetChainBalance(c *gin.Context) {
	lamports, err := h.caches.ChainBalance.Debounce(c.Request.Context(), dedup.OpChainBalance,
		func(ctx context.Context) (int64, error) {
			pubkey, err := h.agent.PublicKey(ctx)
			if err != nil {
				return 0, err
			}
			return h.rpc.Balance(ctx, pubkey)
		},
		dedup.Options{},
	)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"lamports": lamports})
}

// ============================================================
// 账单相关接口
// ============================================================

// ListInvoices 查询账单列表
// GET /api/v1/invoice/list?offset=&limit=&reset=
func (h *Handler) ListInvoices(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.pageSize)))
	reset := c.DefaultQuery("reset", "true") == "true"

	if _, err := h.invoices.List(c.Request.Context(), offset, limit, reset); err != nil {
		// 旧缓存保留，带错误标记返回
		response.BusinessData(c, response.CodeServerError, err.Error(), gin.H{
			"invoices": h.invoices.Invoices(),
			"total":    h.invoices.Total(),
			"stale":    true,
		})
		return
	}

	response.Success(c, gin.H{
		"invoices": h.invoices.Invoices(),
		"total":    h.invoices.Total(),
		"cursor":   h.invoices.Cursor(),
	})
}

// GetInvoice 查询单张账单
// GET /api/v1/invoice/detail?id=xxx
func (h *Handler) GetInvoice(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		response.ParamError(c, "id 参数不能为空")
		return
	}

	invoice, err := h.backend.GetInvoice(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, backend.ErrInvoiceNotFound) {
			response.BusinessError(c, response.CodeInvoiceNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, invoice)
}

// CancelInvoice 取消账单
// POST /api/v1/invoice/cancel
func (h *Handler) CancelInvoice(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.invoices.Cancel(c.Request.Context(), req.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrInvoiceUnknown):
			response.BusinessError(c, response.CodeInvoiceNotFound, err.Error())
		case errors.Is(err, store.ErrCancelNotAllowed):
			response.BusinessError(c, response.CodeCancelNotAllowed, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	// 取消改变了后端状态，去重缓存整体失效
	h.caches.ClearAll()

	response.Success(c, gin.H{"message": "账单已取消"})
}

// ============================================================
// 充值相关接口
// ============================================================

// TopUpRequest 充值请求
type TopUpRequest struct {
	Lamports int64 `json:"lamports" binding:"required,gt=0"`
}

// TopUp 发起充值结算
// POST /api/v1/topup/execute
//
// 【关键点】结果有三种走向，界面必须能区分：
// 1. DONE —— 已上报，等后端验证入账
// 2. RECONCILING —— 交易已提交但上报失败，对账兜底中，不是支付失败
// 3. REJECTED / FAILED —— 用户拒绝或提交故障，可重新发起
func (h *Handler) TopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	outcome := h.orch.TopUp(c.Request.Context(), req.Lamports)

	data := gin.H{"state": string(outcome.State)}
	if outcome.Invoice != nil {
		data["invoice"] = outcome.Invoice.ID
	}
	if outcome.Signature != "" {
		data["signature"] = outcome.Signature
	}

	switch {
	case outcome.Success():
		response.Success(c, data)
	case outcome.Reconciling():
		response.BusinessData(c, response.CodeReconciling, "交易已提交，对账中", data)
	case outcome.State == settle.StateRejected:
		response.BusinessData(c, response.CodeUserRejected, "用户已取消签名", data)
	default:
		response.BusinessData(c, h.failureCode(outcome), outcome.Err.Error(), data)
	}
}

func (h *Handler) failureCode(outcome *settle.Outcome) int {
	switch {
	case errors.Is(outcome.Err, store.ErrPendingInvoiceExists):
		return response.CodePendingInvoiceExists
	case errors.Is(outcome.Err, backend.ErrInvalidAmount), errors.Is(outcome.Err, chain.ErrInvalidAmount):
		return response.CodeInvalidAmount
	case errors.Is(outcome.Err, chain.ErrInvalidDestination):
		return response.CodeInvalidDestination
	case outcome.Step == settle.StepSign:
		return response.CodeSubmitFailed
	}
	return response.CodeServerError
}
