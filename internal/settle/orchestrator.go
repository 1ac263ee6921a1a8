package settle

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"solpay/internal/backend"
	"solpay/internal/chain"
	"solpay/internal/dedup"
	"solpay/internal/model"
	"solpay/internal/store"
)

// ============================================================
// 结算状态机
// ============================================================

// State 单次结算尝试所处的状态
// IDLE -> PREPARING -> BUILT -> AWAITING_SIGNATURE -> SUBMITTED
//      -> REPORTING -> RECONCILING -> DONE
// REJECTED / FAILED 为终态，任何状态都不自动重试，
// 重试只能由调用方重新发起一轮完整结算
type State string

const (
	StateIdle              State = "IDLE"
	StatePreparing         State = "PREPARING"
	StateBuilt             State = "BUILT"
	StateAwaitingSignature State = "AWAITING_SIGNATURE"
	StateSubmitted         State = "SUBMITTED"
	StateReporting         State = "REPORTING"
	StateReconciling       State = "RECONCILING"
	StateDone              State = "DONE"
	StateRejected          State = "REJECTED"
	StateFailed            State = "FAILED"
)

// Step 结算流程中的步骤，用于给失败定位
type Step string

const (
	StepPrepare   Step = "PREPARE"
	StepBuild     Step = "BUILD"
	StepSign      Step = "SIGN"
	StepReport    Step = "REPORT"
	StepReconcile Step = "RECONCILE"
)

// Outcome 一次结算尝试的结果
// 调用方必须检查判别字段再决定下一步，不允许假定成功
type Outcome struct {
	State     State
	Step      Step // 失败或停留的步骤
	Invoice   *model.Invoice
	Signature string
	Err       error
}

// Success 结算已完成且上报成功
func (o *Outcome) Success() bool {
	return o.State == StateDone
}

// Submitted 链上交易已提交（即使上报失败，交易也不可撤回）
func (o *Outcome) Submitted() bool {
	return o.Signature != ""
}

// Reconciling "已提交、对账中"：区别于成功也区别于失败的展示状态
func (o *Outcome) Reconciling() bool {
	return o.State == StateReconciling
}

// Orchestrator 结算编排器
//
// 把"充值 N"的意图推进为一笔已对账的余额变化，协调三个独立失败的参与方：
// 后端账务、外部签名代理、账本网络。没有服务端推送，全部靠拉取与对账。
//
// 【关键点】步骤严格按序执行：
// 1. 签名未拿到之前绝不上报完成
// 2. 上报未尝试（无论成败）之前绝不对账
// 3. 上报失败不等于支付失败——后端会独立做链上验证，对账兜底
type Orchestrator struct {
	invoices       *store.InvoiceStore
	balance        *store.BalanceStore
	backend        *backend.Client
	submitter      *chain.Submitter
	caches         *dedup.Registry
	reconcileDelay time.Duration

	wg sync.WaitGroup
}

func NewOrchestrator(
	invoices *store.InvoiceStore,
	balance *store.BalanceStore,
	client *backend.Client,
	submitter *chain.Submitter,
	caches *dedup.Registry,
	reconcileDelay time.Duration,
) *Orchestrator {
	return &Orchestrator{
		invoices:       invoices,
		balance:        balance,
		backend:        client,
		submitter:      submitter,
		caches:         caches,
		reconcileDelay: reconcileDelay,
	}
}

// TopUp 发起一轮完整结算
func (o *Orchestrator) TopUp(ctx context.Context, lamports int64) *Outcome {
	// 前置条件：同一时刻最多一张活跃账单，在任何网络请求之前拦截
	if o.invoices.HasActive() {
		return &Outcome{State: StateFailed, Step: StepPrepare, Err: store.ErrPendingInvoiceExists}
	}

	// 1. Prepare：请求后端开具账单，失败即中止，此时还没有任何链上交互
	invoice, err := o.invoices.Create(ctx, lamports)
	if err != nil {
		return &Outcome{State: StateFailed, Step: StepPrepare, Err: err}
	}
	log.Printf("[Orchestrator] 账单已开具: id=%s, lamports=%d", invoice.ID, invoice.Lamports)

	// 2. Build：装配交易，畸形参数在这里快速失败，不会走到签名代理
	tx, err := o.submitter.BuildTransfer(ctx, invoice.ToAddress, invoice.Lamports, invoice.Memo)
	if err != nil {
		return &Outcome{State: StateFailed, Step: StepBuild, Invoice: invoice, Err: err}
	}

	// 3. Sign & Submit：交给签名代理
	signature, err := o.submitter.SignAndSend(ctx, tx)
	if err != nil {
		if errors.Is(err, chain.ErrUserRejected) {
			// 用户拒绝是预期结果：账单保持 PENDING，不上报、不刷余额
			log.Printf("[Orchestrator] 用户拒绝签名: invoice=%s", invoice.ID)
			return &Outcome{State: StateRejected, Step: StepSign, Invoice: invoice, Err: err}
		}
		return &Outcome{State: StateFailed, Step: StepSign, Invoice: invoice, Err: err}
	}
	log.Printf("[Orchestrator] 交易已提交: invoice=%s, signature=%s", invoice.ID, signature)

	// 确认超时不中止流程：交易可能仍会落块，后端独立验证
	if err := o.submitter.WaitForConfirmation(ctx, signature); err != nil {
		log.Printf("[Orchestrator] 等待链上确认未完成: invoice=%s, err=%v", invoice.ID, err)
	}

	// 4. Report：上报签名，只是告知"有一笔声称满足该账单的交易已提交"
	reportErr := o.backend.CompleteInvoice(ctx, invoice.ID, signature)
	if reportErr != nil {
		// 链上交易不可撤回，上报失败只记录差异，交给对账兜底
		log.Printf("[Orchestrator] 上报完成失败，等待对账兜底: invoice=%s, err=%v", invoice.ID, reportErr)
	}

	// 5. Reconcile：立即对账一次，再排一次延迟对账，
	// 覆盖后端异步验证在刷新时还没跑完的情况
	o.reconcile(ctx)
	o.scheduleDelayedReconcile()

	if reportErr != nil {
		return &Outcome{
			State:     StateReconciling,
			Step:      StepReport,
			Invoice:   invoice,
			Signature: signature,
			Err:       reportErr,
		}
	}

	return &Outcome{State: StateDone, Invoice: invoice, Signature: signature}
}

func (o *Orchestrator) reconcile(ctx context.Context) {
	if err := o.invoices.Invalidate(ctx); err != nil {
		log.Printf("[Orchestrator] 刷新账单列表失败: %v", err)
	}
	if err := o.balance.Refresh(ctx); err != nil {
		log.Printf("[Orchestrator] 刷新余额失败: %v", err)
	}
	o.caches.ClearAll()
}

// scheduleDelayedReconcile 单次延迟对账
// 固定延迟、只排一次，不是周期任务
func (o *Orchestrator) scheduleDelayedReconcile() {
	o.wg.Add(1)
	time.AfterFunc(o.reconcileDelay, func() {
		defer o.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Printf("[Orchestrator] 执行延迟对账")
		o.reconcile(ctx)
	})
}

// Wait 等待已排定的延迟对账全部执行完，停机与测试用
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
