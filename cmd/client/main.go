package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solpay/internal/backend"
	"solpay/internal/chain"
	"solpay/internal/config"
	"solpay/internal/dedup"
	"solpay/internal/handler"
	"solpay/internal/infrastructure/cache"
	"solpay/internal/job"
	"solpay/internal/settle"
	"solpay/internal/store"
	"solpay/pkg/idgen"
)

func main() {
	// 加载配置
	cfg := config.LoadConfig("config/config.yaml")

	// 初始化请求 ID 生成器
	gen, err := idgen.New(1)
	if err != nil {
		log.Fatalf("初始化 ID 生成器失败: %v", err)
	}

	// 初始化 Redis（页面快照缓存）
	redisClient := cache.InitRedis(&cfg.Redis)
	snapshots := cache.NewSnapshotStore(redisClient, time.Duration(cfg.Redis.SnapshotTTLSeconds)*time.Second)

	// 外部协作方客户端
	backendClient := backend.NewClient(&cfg.Backend, gen)
	rpcClient := chain.NewRPCClient(&cfg.Chain)
	agent := chain.NewAgent(&cfg.Agent)
	submitter := chain.NewSubmitter(rpcClient, agent)

	// 缓存与仓库：启动时显式构造一次，按引用传递，不用包级单例
	caches := dedup.NewRegistry(cfg.Business.Debounce())
	invoices := store.NewInvoiceStore(backendClient, snapshots, cfg.Business.PageSize)
	balance := store.NewBalanceStore(backendClient, snapshots)

	// 用快照预热首屏，随后立即做一次真实拉取覆盖
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 10*time.Second)
	invoices.Warm(warmCtx)
	balance.Warm(warmCtx)
	if err := invoices.Refresh(warmCtx); err != nil {
		log.Printf("启动拉取账单列表失败: %v", err)
	}
	if err := balance.Refresh(warmCtx); err != nil {
		log.Printf("启动拉取余额失败: %v", err)
	}
	warmCancel()

	orch := settle.NewOrchestrator(invoices, balance, backendClient, submitter, caches, cfg.Business.ReconcileDelay())

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动账单轮询
	poller := job.NewInvoicePoller(invoices, balance, caches, cfg.Business.PollInterval())
	go poller.Start(ctx)

	// 设置路由
	h := handler.NewHandler(invoices, balance, backendClient, orch, rpcClient, agent, caches, cfg.Business.PageSize)
	router := handler.SetupRouter(h)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 停止轮询与后台任务
	cancel()

	// 等待已排定的延迟对账落地
	orch.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
