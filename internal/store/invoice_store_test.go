package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solpay/internal/backend"
	"solpay/internal/config"
	"solpay/internal/infrastructure/cache"
	"solpay/internal/model"
	"solpay/internal/store"
	"solpay/pkg/idgen"
)

const testAddress = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"

// fakeLedger 内存版后端账务服务，账单按创建时间倒序（最新在前）
type fakeLedger struct {
	mu       sync.Mutex
	invoices []*model.Invoice
	nextID   int

	failList     bool
	listCalls    int
	prepareCalls int
}

func (f *fakeLedger) seed(status string) *model.Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	inv := &model.Invoice{
		ID:        fmt.Sprintf("inv-%d", f.nextID),
		Lamports:  100,
		ToAddress: testAddress,
		Status:    status,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	f.invoices = append([]*model.Invoice{inv}, f.invoices...)
	return inv
}

func (f *fakeLedger) setStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invoices {
		if inv.ID == id {
			inv.Status = status
		}
	}
}

func (f *fakeLedger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/invoices" && r.Method == http.MethodGet:
		if f.failList {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"boom"}`))
			return
		}
		f.listCalls++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := offset + limit
		if end > len(f.invoices) {
			end = len(f.invoices)
		}
		page := []*model.Invoice{}
		if offset < len(f.invoices) {
			page = f.invoices[offset:end]
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"invoices": page,
			"total":    len(f.invoices),
		})

	case r.URL.Path == "/invoices/prepare":
		f.prepareCalls++
		var req struct {
			Amount int64 `json:"amount"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.nextID++
		inv := &model.Invoice{
			ID:        fmt.Sprintf("inv-%d", f.nextID),
			Lamports:  req.Amount,
			ToAddress: testAddress,
			Status:    model.InvoiceStatusPending,
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		f.invoices = append([]*model.Invoice{inv}, f.invoices...)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"invoice":   inv.ID,
			"lamports":  inv.Lamports,
			"toAddress": inv.ToAddress,
			"memo":      "topup",
			"expiresAt": inv.ExpiresAt,
		})

	case r.URL.Path == "/invoices/cancel":
		var req struct {
			ID string `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, inv := range f.invoices {
			if inv.ID == req.ID && inv.Status == model.InvoiceStatusPending {
				inv.Status = model.InvoiceStatusCancelled
			}
		}
		w.Write([]byte(`{}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestStore(t *testing.T, ledger *fakeLedger, pageSize int) *store.InvoiceStore {
	t.Helper()
	srv := httptest.NewServer(ledger)
	t.Cleanup(srv.Close)

	gen, err := idgen.New(1)
	require.NoError(t, err)
	client := backend.NewClient(&config.BackendConfig{BaseURL: srv.URL, TimeoutSeconds: 5}, gen)
	return store.NewInvoiceStore(client, cache.NewSnapshotStore(nil, 0), pageSize)
}

func TestListResetAndAppend(t *testing.T) {
	ledger := &fakeLedger{}
	for i := 0; i < 5; i++ {
		ledger.seed(model.InvoiceStatusPaid)
	}
	s := newTestStore(t, ledger, 2)
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))
	require.Len(t, s.Invoices(), 2)
	require.Equal(t, int64(5), s.Total())
	require.Equal(t, 2, s.Cursor())
	// 后端倒序：最新的 inv-5 在最前
	require.Equal(t, "inv-5", s.Invoices()[0].ID)

	// 追加下一页，顺序保持
	_, err := s.List(ctx, s.Cursor(), 2, false)
	require.NoError(t, err)
	require.Len(t, s.Invoices(), 4)
	require.Equal(t, 4, s.Cursor())
	require.Equal(t, "inv-3", s.Invoices()[2].ID)

	// reset 重新从 0 开始整体替换
	_, err = s.List(ctx, 99, 2, true)
	require.NoError(t, err)
	require.Len(t, s.Invoices(), 2)
	require.Equal(t, "inv-5", s.Invoices()[0].ID)
}

func TestRefreshFailureKeepsCache(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.seed(model.InvoiceStatusPending)
	s := newTestStore(t, ledger, 10)
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))
	before := s.Invoices()
	require.Len(t, before, 1)

	// 后端故障时旧缓存原样保留
	ledger.failList = true
	require.Error(t, s.Refresh(ctx))
	require.Equal(t, before, s.Invoices())
}

func TestCreateZeroAmountRejectedBeforeNetwork(t *testing.T) {
	ledger := &fakeLedger{}
	s := newTestStore(t, ledger, 10)

	_, err := s.Create(context.Background(), 0)
	require.ErrorIs(t, err, backend.ErrInvalidAmount)
	require.Equal(t, 0, ledger.prepareCalls)
}

func TestCancelFlow(t *testing.T) {
	ledger := &fakeLedger{}
	s := newTestStore(t, ledger, 10)
	ctx := context.Background()

	// 开单 -> 取消 -> 列表可见已取消 -> 前置条件解除，可再开单
	inv, err := s.Create(ctx, 500_000_000)
	require.NoError(t, err)
	require.Equal(t, model.InvoiceStatusPending, inv.Status)
	require.True(t, s.HasActive())

	require.NoError(t, s.Cancel(ctx, inv.ID))

	require.Nil(t, s.FirstPending())
	require.False(t, s.HasActive())
	for _, cached := range s.Invoices() {
		if cached.ID == inv.ID {
			require.Equal(t, model.InvoiceStatusCancelled, cached.Status)
		}
	}

	_, err = s.Create(ctx, 200_000_000)
	require.NoError(t, err)
	require.Equal(t, 2, ledger.prepareCalls)
}

func TestCancelOnlyFromPending(t *testing.T) {
	ledger := &fakeLedger{}
	processing := ledger.seed(model.InvoiceStatusProcessing)
	paid := ledger.seed(model.InvoiceStatusPaid)
	s := newTestStore(t, ledger, 10)
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))

	// 处理中与终态账单都不可取消
	require.ErrorIs(t, s.Cancel(ctx, processing.ID), store.ErrCancelNotAllowed)
	require.ErrorIs(t, s.Cancel(ctx, paid.ID), store.ErrCancelNotAllowed)
	require.ErrorIs(t, s.Cancel(ctx, "missing"), store.ErrInvoiceUnknown)
}

func TestDerivedQueries(t *testing.T) {
	ledger := &fakeLedger{}
	paid := ledger.seed(model.InvoiceStatusPaid)
	processing := ledger.seed(model.InvoiceStatusProcessing)
	pending := ledger.seed(model.InvoiceStatusPending)
	s := newTestStore(t, ledger, 10)
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))
	calls := ledger.listCalls

	first := s.FirstPending()
	require.NotNil(t, first)
	require.Equal(t, pending.ID, first.ID)

	inProgress := s.Processing()
	require.Len(t, inProgress, 1)
	require.Equal(t, processing.ID, inProgress[0].ID)

	require.True(t, s.Has(paid.ID))
	require.False(t, s.Has("missing"))

	// 派生查询是纯缓存计算，不产生网络请求
	require.Equal(t, calls, ledger.listCalls)
}

func TestInvalidateForcesRefresh(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.seed(model.InvoiceStatusPending)
	s := newTestStore(t, ledger, 10)
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))
	calls := ledger.listCalls

	// 后端状态变了（账单支付成功），invalidate 后缓存与后端一致
	ledger.setStatus("inv-1", model.InvoiceStatusPaid)
	require.NoError(t, s.Invalidate(ctx))
	require.Equal(t, calls+1, ledger.listCalls)
	require.False(t, s.HasActive())
}
