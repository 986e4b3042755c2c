package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"IntentX/internal/api"
	"IntentX/internal/config"
	"IntentX/internal/intent"
	"IntentX/internal/ledger"
	"IntentX/internal/observability/alerting"
	"IntentX/internal/vault"
	"IntentX/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadOrDefault(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	publisher, err := newPublisher(ctx, cfg.Events)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.L().Warn("关闭事件发布器失败", slog.Any("error", err))
			}
		}()
	}

	var ledgerOpts []ledger.Option
	if publisher != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithPublisher(publisher))
	}
	book := ledger.New(ledgerOpts...)

	rand := intent.NewRandomness(cfg.Lifecycle.Seed)
	gaslessBase, gaslessJitter := cfg.Lifecycle.GaslessDelay()
	store := intent.NewMemoryStore()
	svc := intent.NewService(store, book,
		intent.WithRandomness(rand),
		intent.WithSettler(intent.TimerSettler{Delay: cfg.Lifecycle.SettlementDelay()}),
		intent.WithGaslessSettler(intent.TimerSettler{Delay: gaslessBase, Jitter: gaslessJitter, Rand: rand}),
		intent.WithSettlementTimeout(cfg.Lifecycle.SettlementTimeout()),
		intent.WithNetwork(cfg.Lifecycle.Network),
		intent.WithAlertDispatcher(alerting.NewFanout(alerting.LogNotifier{})),
	)
	batch := intent.NewBatchCoordinator(
		svc.WithSettler(intent.TimerSettler{Delay: cfg.Batch.SettlementDelay()}),
		intent.WithMaxBatchSize(cfg.Batch.MaxSize),
		intent.WithConcurrency(cfg.Batch.Concurrency),
	)
	vaults := vault.NewService(book, cfg.Vaults, vault.WithNetwork(cfg.Lifecycle.Network))

	server := api.NewServer(cfg.Server.Address, svc,
		api.WithIntentStore(store),
		api.WithBatchCoordinator(batch),
		api.WithLedger(book),
		api.WithVaults(vaults),
	)

	logger.L().Info("IntentX 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("events_driver", cfg.Events.Driver),
		slog.String("network", cfg.Lifecycle.Network),
		slog.Int("vaults", len(cfg.Vaults)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	if mem, ok := publisher.(*ledger.MemoryPublisher); ok {
		g.Go(func() error {
			drainRecords(gctx, mem)
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.L().Info("IntentX 已停止")
	return nil
}

func newPublisher(ctx context.Context, cfg config.EventsConfig) (ledger.Publisher, error) {
	switch cfg.Driver {
	case config.DriverNone:
		return nil, nil
	case config.DriverMemory:
		return ledger.NewMemoryPublisher(256), nil
	case config.DriverRedis:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return ledger.NewRedisPublisher(dialCtx, ledger.RedisPublisherConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			MaxLen:   cfg.Redis.MaxLen,
		})
	case config.DriverRabbitMQ:
		return ledger.NewRabbitMQPublisher(ledger.RabbitMQPublisherConfig{
			URL:     cfg.RabbitMQ.URL,
			Queue:   cfg.RabbitMQ.Queue,
			Durable: cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Driver)
	}
}

// drainRecords 在单进程部署中消费内存发布器，把每条记录写入事件日志。
func drainRecords(ctx context.Context, mem *ledger.MemoryPublisher) {
	log := logger.Named("events")
	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-mem.Records():
			if !ok {
				return
			}
			log.Info("账本记录",
				slog.String("record_id", record.ID),
				slog.String("type", record.Type),
				slog.String("tx_hash", record.TxHash),
			)
		}
	}
}
