package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/alert"
	"main/internal/bus"
	"main/internal/exchange/bybit"
	"main/internal/execution"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/storage"
	"main/internal/strategy"
	"main/pkg/conn"
)

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...interface{})  {}
func (emptyLogger) Debugf(string, ...interface{}) {}
func (emptyLogger) Errorf(string, ...interface{}) {}

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logs.Infof("starting trader in %s mode, symbols %v", loaded.Mode, loaded.Engine.Symbols)

	if os.Getenv("PYROSCOPE_SERVER") != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trader",
			ServerAddress:   os.Getenv("PYROSCOPE_SERVER"),
			Tags: map[string]string{
				"mode": loaded.Mode.String(),
			},
			Logger: emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	pg, err := conn.New(conn.Option{
		Host:     loaded.Database.Host,
		Port:     loaded.Database.Port,
		User:     loaded.Database.User,
		Password: loaded.Database.Password,
		Database: loaded.Database.Database,
	})
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}
	store, err := storage.New(pg)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}

	notifier := alert.NewNotifier(loaded.Alert.WebhookURL)
	eventBus := bus.New(loaded.Engine.BusCapacity)

	client := bybit.NewClient(bybit.Config{
		BaseURL:      loaded.Exchange.BaseURL,
		APIKey:       loaded.Credentials.APIKey,
		APISecret:    loaded.Credentials.APISecret,
		RecvWindowMs: loaded.Exchange.RecvWindowMs,
	})

	manager := execution.NewManager(loaded.Mode, store)
	paper := execution.NewPaperBroker(loaded.Engine.PaperBalance, eventBus, store)
	manager.Register(enum.ExecutionPaper, paper)
	manager.Register(enum.ExecutionReal, execution.NewRealBroker(client, loaded.Symbols, store, eventBus))

	engine := risk.NewEngine(loaded.Risk, loaded.Symbols, manager, manager, store, notifier)
	if err := engine.Restore(ctx); err != nil {
		log.Fatalf("risk state restore failed: %v", err)
	}

	classifier := strategy.NewVolatilityClassifier(store, loaded.Engine.Interval)
	orchestrator := strategy.NewOrchestrator(engine, manager, store, client, classifier, eventBus, loaded.Engine.Interval, loaded.Engine.WarmupBars)
	orchestrator.Register(strategy.NewMomentum(loaded.Engine.Symbols))
	orchestrator.Register(strategy.NewMeanReversion(loaded.Engine.Symbols))
	if err := orchestrator.Warmup(ctx); err != nil {
		log.Fatalf("warmup failed: %v", err)
	}

	// Handler order matters: the risk monitor refreshes prices and
	// evaluates exits before the orchestrator proposes new entries.
	eventBus.Subscribe(enum.EventKline, "risk_monitor", engine.HandleKline)
	if loaded.Mode == enum.ExecutionPaper {
		eventBus.Subscribe(enum.EventKline, "paper_ledger", paper.HandleKline)
	}
	eventBus.Subscribe(enum.EventKline, "orchestrator", orchestrator.HandleKline)
	eventBus.Subscribe(enum.EventOrderUpdate, "risk_monitor", engine.HandleOrderUpdate)
	eventBus.Subscribe(enum.EventOrderUpdate, "orchestrator", orchestrator.HandleOrderUpdate)
	eventBus.Subscribe(enum.EventTradeClosed, "risk_monitor", engine.HandleTradeClosed)
	eventBus.Subscribe(enum.EventRegime, "orchestrator", orchestrator.HandleRegime)
	eventBus.Start(ctx)

	publicWs := bybit.NewPublicWs(ctx, loaded.Exchange.WsPublicURL)
	if err := publicWs.Start(ctx); err != nil {
		log.Fatalf("public ws start failed: %v", err)
	}
	for _, symbol := range loaded.Engine.Symbols {
		if err := publicWs.SubscribeKline(ctx, symbol, loaded.Engine.Interval); err != nil {
			log.Fatalf("subscribe kline %s failed: %v", symbol, err)
		}
	}
	unsubscribeKlines := publicWs.ObserveKlines(ctx, func(k model.Kline) {
		if err := eventBus.Publish(model.KlineEvent{EventMeta: model.NewEventMeta(), Kline: k}); err != nil {
			logs.Warnf("publish kline, err: %+v", err)
		}
	})
	defer unsubscribeKlines()

	var privateWs *bybit.PrivateWs
	if loaded.Mode == enum.ExecutionReal {
		privateWs = bybit.NewPrivateWs(ctx, loaded.Exchange.WsPrivateURL, loaded.Credentials.APIKey, loaded.Credentials.APISecret)
		if err := privateWs.Start(ctx); err != nil {
			log.Fatalf("private ws start failed: %v", err)
		}
		if err := privateWs.Auth(ctx); err != nil {
			log.Fatalf("private ws auth failed: %v", err)
		}
		if err := privateWs.SubscribeOrders(ctx); err != nil {
			log.Fatalf("subscribe orders failed: %v", err)
		}
		unsubscribeOrders := privateWs.ObserveOrders(ctx, func(u model.OrderUpdateEvent) {
			if err := eventBus.Publish(u); err != nil {
				logs.Warnf("publish order update, err: %+v", err)
			}
		})
		defer unsubscribeOrders()
	}

	go orchestrator.RunRegimeLoop(ctx, time.Duration(loaded.Engine.RegimeRefreshSec)*time.Second)

	var metricsSrv *http.Server
	if loaded.Engine.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obs.Handler())
		metricsSrv = &http.Server{Addr: loaded.Engine.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logs.Errorf("metrics server, err: %+v", err)
			}
		}()
	}

	<-ctx.Done()
	logs.Info("shutting down")

	// Stop event production first, then drain the bus, then flush.
	publicWs.Close()
	if privateWs != nil {
		privateWs.Close()
	}
	eventBus.Stop()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	orchestrator.SaveStates(flushCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(flushCtx)
	}
	logs.Info("trader stopped")
}
