package job_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solpay/internal/backend"
	"solpay/internal/config"
	"solpay/internal/dedup"
	"solpay/internal/infrastructure/cache"
	"solpay/internal/job"
	"solpay/internal/model"
	"solpay/internal/store"
	"solpay/pkg/idgen"
)

type fakeBackend struct {
	mu           sync.Mutex
	status       string
	listCalls    int
	balanceCalls int
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/invoices":
		f.listCalls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"invoices": []*model.Invoice{{
				ID:        "inv-1",
				Lamports:  100,
				Status:    f.status,
				CreatedAt: time.Now(),
				ExpiresAt: time.Now().Add(time.Hour),
			}},
			"total": 1,
		})
	case "/balance":
		f.balanceCalls++
		w.Write([]byte(`{"solBalance":1.0,"usdBalance":150.0,"status":"active"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeBackend) snapshot() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.balanceCalls
}

func (f *fakeBackend) setStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func newPollerFixture(t *testing.T, status string) (*fakeBackend, *store.InvoiceStore, *job.InvoicePoller, *store.BalanceStore) {
	t.Helper()
	fake := &fakeBackend{status: status}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	gen, err := idgen.New(1)
	require.NoError(t, err)
	client := backend.NewClient(&config.BackendConfig{BaseURL: srv.URL, TimeoutSeconds: 5}, gen)

	snapshots := cache.NewSnapshotStore(nil, 0)
	invoices := store.NewInvoiceStore(client, snapshots, 10)
	balance := store.NewBalanceStore(client, snapshots)
	caches := dedup.NewRegistry(time.Minute)

	poller := job.NewInvoicePoller(invoices, balance, caches, 10*time.Millisecond)
	return fake, invoices, poller, balance
}

func TestPollerRefreshesWhileActive(t *testing.T) {
	fake, invoices, poller, _ := newPollerFixture(t, model.InvoiceStatusProcessing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 先装入一张处理中的账单，轮询才有活干
	require.NoError(t, invoices.Refresh(ctx))
	before, _ := fake.snapshot()

	go poller.Start(ctx)
	time.Sleep(55 * time.Millisecond)

	after, _ := fake.snapshot()
	require.Greater(t, after, before, "存在活跃账单时应持续轮询")
}

func TestPollerStopsWhenAllTerminal(t *testing.T) {
	fake, invoices, poller, _ := newPollerFixture(t, model.InvoiceStatusProcessing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, invoices.Refresh(ctx))
	go poller.Start(ctx)
	time.Sleep(25 * time.Millisecond)

	// 后端把账单标成已支付：下一轮拉取发现全部终态，刷余额后停止打后端
	fake.setStatus(model.InvoiceStatusPaid)
	time.Sleep(40 * time.Millisecond)

	require.False(t, invoices.HasActive())
	_, balanceCalls := fake.snapshot()
	require.GreaterOrEqual(t, balanceCalls, 1, "进入终态的那一轮要刷新余额")

	listAfterSettled, _ := fake.snapshot()
	time.Sleep(40 * time.Millisecond)
	listLater, _ := fake.snapshot()
	require.Equal(t, listAfterSettled, listLater, "全部终态后不再拉取列表")
}

func TestPollerStop(t *testing.T) {
	_, invoices, poller, _ := newPollerFixture(t, model.InvoiceStatusPending)
	ctx := context.Background()
	require.NoError(t, invoices.Refresh(ctx))

	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	poller.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop 后轮询未退出")
	}
}
