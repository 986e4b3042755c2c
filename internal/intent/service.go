package intent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	xerrors "IntentX/internal/errors"
	"IntentX/internal/ledger"
	"IntentX/internal/observability/alerting"
	"IntentX/internal/observability/metrics"
	"IntentX/internal/web3"
	"IntentX/pkg/logger"
)

const (
	// MaxNaturalLanguageLength 限制单条意图文本的长度（按字符计）。
	MaxNaturalLanguageLength = 1000
	// DefaultNetwork 是账本记录默认的网络标签。
	DefaultNetwork = "BlockDAG Testnet"
	// GasUnit 是 totalGasEstimate 的单位后缀。
	GasUnit = "ETH"

	defaultGasUsed = "0.005"
)

// SubmitRequest 是提交意图的输入。
type SubmitRequest struct {
	NaturalLanguage string         `json:"naturalLanguage"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Validate 检查请求字段，错误信息中点名出错的字段。
func (r SubmitRequest) Validate() error {
	text := strings.TrimSpace(r.NaturalLanguage)
	if text == "" {
		return xerrors.New(CodeIntentValidation, "naturalLanguage is required")
	}
	if utf8.RuneCountInString(text) > MaxNaturalLanguageLength {
		return xerrors.New(CodeIntentValidation,
			fmt.Sprintf("naturalLanguage must be at most %d characters", MaxNaturalLanguageLength))
	}
	return nil
}

// LogsView 是执行浏览器查询意图日志时的返回结构。
type LogsView struct {
	Logs        []LogEntry `json:"logs"`
	ParsedSteps []Step     `json:"parsedSteps"`
}

// Service 编排意图生命周期：created → parsed → executing → completed（或 failed）。
// 它是唯一会修改意图记录和写入意图结算记录的组件。
type Service struct {
	store     Store
	recorder  ledger.Recorder
	extractor *Extractor
	rand      Randomness
	settler   Settler
	gasless   Settler
	timeout   time.Duration
	network   string
	alerter   alerting.Dispatcher
	now       func() time.Time
	inflight  *sync.Map
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithRandomness 注入随机源，Gas 估算与交易哈希都来自它。
func WithRandomness(r Randomness) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.rand = r
		}
	}
}

// WithSettler 配置普通执行的结算等待。
func WithSettler(settler Settler) ServiceOption {
	return func(s *Service) {
		s.settler = settler
	}
}

// WithGaslessSettler 配置账户抽象执行的打包等待。
func WithGaslessSettler(settler Settler) ServiceOption {
	return func(s *Service) {
		s.gasless = settler
	}
}

// WithSettlementTimeout 设置结算等待的超时时间，<= 0 表示不限制。
func WithSettlementTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = timeout
	}
}

// WithNetwork 设置账本记录中的网络标签。
func WithNetwork(network string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(network) != "" {
			s.network = network
		}
	}
}

// WithAlertDispatcher 配置结算失败时的告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ServiceOption {
	return func(s *Service) {
		s.alerter = dispatcher
	}
}

// WithClock 替换时间源。
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 构造生命周期服务。
func NewService(store Store, recorder ledger.Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		recorder: recorder,
		network:  DefaultNetwork,
		now:      time.Now,
		inflight: &sync.Map{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.rand == nil {
		s.rand = NewRandomness(0)
	}
	if s.settler == nil {
		s.settler = TimerSettler{Delay: 1500 * time.Millisecond}
	}
	if s.gasless == nil {
		s.gasless = TimerSettler{Delay: 150 * time.Millisecond, Jitter: 100 * time.Millisecond, Rand: s.rand}
	}
	s.extractor = NewExtractor(s.rand)
	return s
}

// WithSettler 返回共享存储与账本、但使用另一个结算等待的服务副本。
// 批量处理用它换上更短的延迟。
func (s *Service) WithSettler(settler Settler) *Service {
	clone := *s
	clone.settler = settler
	return &clone
}

// Submit 创建一个 created 状态的意图。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Intent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	created, err := s.store.Create(ctx, Draft{NaturalLanguage: req.NaturalLanguage, Metadata: req.Metadata})
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, created.ID, Patch{AppendLogs: []LogEntry{s.logEntry(StatusCreated, "Intent submitted")}})
	if err != nil {
		return nil, err
	}
	metrics.IntentTransitions.WithLabelValues(string(StatusCreated)).Inc()
	logger.Audit().Info("意图已提交",
		slog.String("intent_id", updated.ID),
		slog.String("natural_language", updated.NaturalLanguage),
	)
	return updated, nil
}

// Parse 运行一次步骤提取并把意图推进到 parsed。已解析的意图不会被重新解析。
func (s *Service) Parse(ctx context.Context, id string) (*Intent, error) {
	return s.parse(ctx, id, false)
}

// SubmitAndParse 提交并立即解析，对应 intent.parse 接口。
func (s *Service) SubmitAndParse(ctx context.Context, req SubmitRequest) (*Intent, error) {
	created, err := s.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Parse(ctx, created.ID)
}

func (s *Service) parse(ctx context.Context, id string, sponsored bool) (*Intent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusCreated {
		return nil, xerrors.New(CodeIntentTransition,
			fmt.Sprintf("intent %s is %s and cannot be parsed", id, current.Status))
	}

	steps := s.extractor.Extract(current.NaturalLanguage)
	gas := TotalGas(steps)
	if sponsored {
		gas = "0"
	}
	status := StatusParsed
	updated, err := s.store.Update(ctx, id, Patch{
		Status:           &status,
		ParsedSteps:      steps,
		TotalGasEstimate: &gas,
		Sponsored:        &sponsored,
		AppendLogs:       []LogEntry{s.logEntry(StatusParsed, fmt.Sprintf("Parsed into %d step(s), estimated gas %s", len(steps), gas))},
	})
	if err != nil {
		return nil, err
	}
	metrics.IntentTransitions.WithLabelValues(string(StatusParsed)).Inc()
	logger.Named("intent").Debug("意图解析完成",
		slog.String("intent_id", id),
		slog.Int("steps", len(steps)),
		slog.String("total_gas", gas),
	)
	return updated, nil
}

// Execute 要求意图处于 parsed 状态，推进到 executing，等待模拟结算后变为
// completed，并向账本写入一条记录。结算被取消或超时则意图转为 failed。
func (s *Service) Execute(ctx context.Context, id string) (*Intent, error) {
	return s.execute(ctx, id, s.settler, "standard")
}

// Run 把 submit → parse → execute 作为一个逻辑单元执行，供批量处理使用。
func (s *Service) Run(ctx context.Context, req SubmitRequest) (*Intent, error) {
	parsed, err := s.SubmitAndParse(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, parsed.ID)
}

func (s *Service) execute(ctx context.Context, id string, settler Settler, mode string) (*Intent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, xerrors.New(CodeIntentValidation, "Intent ID required")
	}
	if _, busy := s.inflight.LoadOrStore(id, struct{}{}); busy {
		return nil, xerrors.New(CodeIntentTransition, "intent is already executing")
	}
	defer s.inflight.Delete(id)

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusParsed {
		return nil, ErrIntentNotReady
	}

	executing := StatusExecuting
	current, err = s.store.Update(ctx, id, Patch{
		Status:     &executing,
		AppendLogs: []LogEntry{s.logEntry(StatusExecuting, "Submitted for settlement")},
	})
	if err != nil {
		return nil, err
	}
	metrics.IntentTransitions.WithLabelValues(string(StatusExecuting)).Inc()

	start := s.now()
	if err := s.awaitSettlement(ctx, settler, mode); err != nil {
		return nil, s.fail(context.WithoutCancel(ctx), current, err)
	}
	return s.complete(ctx, current, s.now().Sub(start))
}

func (s *Service) awaitSettlement(ctx context.Context, settler Settler, mode string) error {
	settleCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		settleCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	began := s.now()
	err := settler.Await(settleCtx)
	metrics.SettlementDuration.WithLabelValues(mode).Observe(s.now().Sub(began).Seconds())
	return err
}

func (s *Service) complete(ctx context.Context, current *Intent, elapsed time.Duration) (*Intent, error) {
	completed := StatusCompleted
	txHash := web3.NewHash(s.rand).Hex()
	executedAt := s.now().UTC()
	updated, err := s.store.Update(ctx, current.ID, Patch{
		Status:     &completed,
		TxHash:     &txHash,
		ExecutedAt: &executedAt,
		AppendLogs: []LogEntry{s.logEntry(StatusCompleted, "Settled in transaction "+txHash)},
	})
	if err != nil {
		return nil, err
	}
	metrics.IntentTransitions.WithLabelValues(string(StatusCompleted)).Inc()

	settlement := SettlementRecord(updated, s.network)
	settlement.ExecutionMs = elapsed.Milliseconds()
	record, err := s.recorder.Append(ctx, settlement)
	if err != nil {
		logger.L().Error("写入账本失败", slog.Any("error", err), slog.String("intent_id", updated.ID))
		return nil, xerrors.Wrap(xerrors.CodeInternal, err, "failed to record settlement")
	}
	logger.Audit().Info("意图结算完成",
		slog.String("intent_id", updated.ID),
		slog.String("tx_hash", txHash),
		slog.String("record_id", record.ID),
		slog.String("gas_used", record.GasUsed),
		slog.Bool("sponsored", updated.Sponsored),
	)
	return updated, nil
}

// fail 把意图标记为 failed，并返回带错误码的结算错误。调用方主动取消视为
// warning，其余结算失败沿用错误码的默认严重程度。
func (s *Service) fail(ctx context.Context, current *Intent, cause error) error {
	code := CodeIntentSettlement
	message := "settlement cancelled"
	opts := []xerrors.Option{xerrors.WithMetadata("intent_id", current.ID)}
	switch {
	case stdErrors.Is(cause, context.DeadlineExceeded):
		code = xerrors.CodeTimeout
		message = "settlement timed out"
	case stdErrors.Is(cause, context.Canceled):
		opts = append(opts, xerrors.WithSeverity(xerrors.SeverityWarning))
	}
	failed := StatusFailed
	reason := message + ": " + cause.Error()
	if _, err := s.store.Update(ctx, current.ID, Patch{
		Status:     &failed,
		Error:      &reason,
		AppendLogs: []LogEntry{s.logEntry(StatusFailed, reason)},
	}); err != nil {
		logger.L().Error("回写失败状态出错", slog.Any("error", err), slog.String("intent_id", current.ID))
	}
	metrics.IntentTransitions.WithLabelValues(string(StatusFailed)).Inc()

	wrapped := xerrors.Wrap(code, cause, message, opts...)
	logger.Audit().Warn("意图结算失败",
		slog.String("intent_id", current.ID),
		slog.String("error", wrapped.Error()),
		slog.String("error_code", string(code)),
		slog.String("severity", string(wrapped.Severity())),
	)
	s.emitAlert(ctx, wrapped, "settle")
	return wrapped
}

// emitAlert 把带错误码的错误转成告警事件，意图 ID 取自错误的 intent_id 元数据。
func (s *Service) emitAlert(ctx context.Context, err error, stage string) {
	if s.alerter == nil || !xerrors.ShouldAlert(err) {
		return
	}
	coded, ok := xerrors.From(err)
	if !ok {
		return
	}
	meta := coded.Metadata()
	event := alerting.Event{
		Code:     coded.Code(),
		Message:  coded.Message(),
		Severity: xerrors.SeverityOf(err),
		IntentID: meta["intent_id"],
		Stage:    stage,
		Metadata: map[string]string{
			"network":   s.network,
			"retryable": strconv.FormatBool(xerrors.RetryableError(err)),
		},
		OccurredAt: s.now(),
	}
	if cause := stdErrors.Unwrap(err); cause != nil {
		event.Metadata["cause"] = cause.Error()
	}
	if notifyErr := s.alerter.Notify(ctx, event); notifyErr != nil {
		logger.L().Error("告警通知失败", slog.Any("error", notifyErr), slog.String("intent_id", event.IntentID))
	}
}

// Get 返回意图。
func (s *Service) Get(ctx context.Context, id string) (*Intent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// Logs 返回意图的生命周期日志与解析出的步骤。
func (s *Service) Logs(ctx context.Context, id string) (LogsView, error) {
	in, err := s.Get(ctx, id)
	if err != nil {
		return LogsView{}, err
	}
	logs := in.Logs
	if logs == nil {
		logs = []LogEntry{}
	}
	return LogsView{Logs: logs, ParsedSteps: in.ParsedSteps}, nil
}

func (s *Service) ready() error {
	if s == nil || s.store == nil || s.recorder == nil {
		return xerrors.New(xerrors.CodeUnavailable, "意图服务未初始化")
	}
	return nil
}

func (s *Service) logEntry(status Status, message string) LogEntry {
	return LogEntry{Timestamp: s.now().UTC(), Status: status, Message: message}
}

// TotalGas 汇总步骤的 Gas 估算，保留 6 位小数并加上单位后缀。
func TotalGas(steps []Step) string {
	return sumGas(steps).StringFixed(6) + " " + GasUnit
}

func sumGas(steps []Step) decimal.Decimal {
	sum := decimal.Zero
	for _, step := range steps {
		gas, err := decimal.NewFromString(step.EstimatedGas)
		if err != nil {
			continue
		}
		sum = sum.Add(gas)
	}
	return sum
}

// SettlementRecord 根据已完成意图的第一个步骤生成账本记录。赞助执行会把
// 各步骤原本的 Gas 估算记为 SponsoredGas。
func SettlementRecord(in *Intent, network string) ledger.Record {
	record := ledger.Record{
		Type:        string(ActionSwap),
		Status:      ledger.StatusConfirmed,
		Description: in.NaturalLanguage,
		Amount:      "0",
		TokenSymbol: "ETH",
		Network:     network,
		TxHash:      in.TxHash,
		GasUsed:     in.TotalGasEstimate,
	}
	if in.ExecutedAt != nil {
		record.Timestamp = *in.ExecutedAt
	}
	if record.GasUsed == "" {
		record.GasUsed = defaultGasUsed
	}
	if in.Sponsored {
		record.SponsoredGas = sumGas(in.ParsedSteps).StringFixed(6)
	}
	if len(in.ParsedSteps) > 0 {
		first := in.ParsedSteps[0]
		record.Type = string(first.Action)
		if first.Amount != "" {
			record.Amount = first.Amount
		}
		switch {
		case first.TokenOut != "":
			record.TokenSymbol = first.TokenOut
		case first.TokenIn != "":
			record.TokenSymbol = first.TokenIn
		}
	}
	return record
}
