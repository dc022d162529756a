package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	osSignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/assist-by/phoenix-engine/internal/backtest"
	"github.com/assist-by/phoenix-engine/internal/config"
	"github.com/assist-by/phoenix-engine/internal/domain"
	eBinance "github.com/assist-by/phoenix-engine/internal/exchange/binance"
	"github.com/assist-by/phoenix-engine/internal/engine"
	"github.com/assist-by/phoenix-engine/internal/market"
	"github.com/assist-by/phoenix-engine/internal/notification"
	"github.com/assist-by/phoenix-engine/internal/notification/discord"
	"github.com/assist-by/phoenix-engine/internal/scheduler"
	"github.com/assist-by/phoenix-engine/internal/server"
	"github.com/assist-by/phoenix-engine/internal/storage"
	"github.com/assist-by/phoenix-engine/internal/strategy"
	"github.com/assist-by/phoenix-engine/internal/strategy/macdsar"
	"github.com/assist-by/phoenix-engine/internal/strategy/rsirevert"
	"github.com/assist-by/phoenix-engine/internal/strategy/smacross"
)

var Version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "phoenix-engine"
	app.Usage = "백테스트와 모의 실행을 같은 파이프라인으로 돌리는 트레이딩 엔진"
	app.Version = Version

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "env", Value: ".env", Usage: "설정 파일 경로"},
	}
	app.Commands = []cli.Command{
		backtestCMD,
		paperCMD,
		fetchCMD,
		runsCMD,
		strategiesCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	backtestCMD = cli.Command{
		Name:   "backtest",
		Usage:  "과거 캔들로 백테스트 실행",
		Action: backtestAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "symbol", Usage: "심볼 (기본값 BACKTEST_SYMBOL)"},
			cli.StringFlag{Name: "interval", Usage: "캔들 간격 (기본값 BACKTEST_INTERVAL)"},
			cli.IntFlag{Name: "days", Usage: "기간(일) (기본값 BACKTEST_DAYS)"},
			cli.StringFlag{Name: "source", Usage: "캔들 출처 binance 또는 db (기본값 BACKTEST_SOURCE)"},
			cli.StringFlag{Name: "strategy", Usage: "전략 이름 (기본값 STRATEGY_NAME)"},
			cli.StringFlag{Name: "report", Usage: "리포트 JSON 저장 경로"},
			cli.BoolFlag{Name: "no-store", Usage: "DB에 결과를 저장하지 않음"},
		},
		Description: `캔들을 시간 순서대로 재생해 전략을 모의 체결하고 성과 지표를 출력합니다`,
	}
	paperCMD = cli.Command{
		Name:        "paper",
		Usage:       "실시간 캔들로 모의 실행",
		Action:      paperAction,
		Flags:       []cli.Flag{cli.StringFlag{Name: "strategy", Usage: "전략 이름 (기본값 STRATEGY_NAME)"}},
		Description: `바이낸스 웹소켓 캔들을 받아 DRY_RUN 모드로 엔진을 실행합니다`,
	}
	fetchCMD = cli.Command{
		Name:   "fetch",
		Usage:  "바이낸스 캔들을 DB에 저장",
		Action: fetchAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "symbol", Usage: "심볼 (기본값 BACKTEST_SYMBOL)"},
			cli.StringFlag{Name: "interval", Usage: "캔들 간격 (기본값 BACKTEST_INTERVAL)"},
			cli.IntFlag{Name: "days", Usage: "기간(일) (기본값 BACKTEST_DAYS)"},
		},
	}
	runsCMD = cli.Command{
		Name:   "runs",
		Usage:  "저장된 백테스트 실행 목록",
		Action: runsAction,
		Flags:  []cli.Flag{cli.IntFlag{Name: "limit", Value: 20}},
	}
	strategiesCMD = cli.Command{
		Name:   "strategies",
		Usage:  "등록된 전략 목록",
		Action: strategiesAction,
	}
)

// setup은 설정을 읽고 로거를 구성합니다
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.GlobalString("env"))
	if err != nil {
		return nil, err
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL: %v", domain.ErrInvalidConfig, err)
	}
	logrus.SetLevel(level)
	if strings.EqualFold(cfg.Log.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return cfg, nil
}

func newRegistry() *strategy.Registry {
	registry := strategy.NewRegistry()
	smacross.RegisterStrategy(registry)
	rsirevert.RegisterStrategy(registry)
	macdsar.RegisterStrategy(registry)
	return registry
}

func newStrategy(c *cli.Context, cfg *config.Config) (strategy.Strategy, error) {
	if name := c.String("strategy"); name != "" {
		cfg.Strategy.Name = name
	}
	return strategy.CreateStrategyFromConfig(newRegistry(), cfg)
}

func newNotifier(cfg *config.Config, logger *logrus.Entry) notification.Notifier {
	client := discord.NewClient(
		cfg.Discord.TradeWebhook,
		cfg.Discord.ErrorWebhook,
		cfg.Discord.InfoWebhook,
		discord.WithTimeout(10*time.Second),
		discord.WithLogger(logger),
	)
	if !client.Enabled() {
		return notification.Nop{}
	}
	return client
}

func newBinance(cfg *config.Config) *eBinance.Client {
	return eBinance.NewClient(
		cfg.Binance.APIKey,
		cfg.Binance.SecretKey,
		eBinance.WithTimeout(10*time.Second),
		eBinance.WithBaseURL(cfg.Binance.BaseURL),
	)
}

// signalContext는 SIGINT/SIGTERM을 받으면 취소되는 컨텍스트를 만듭니다
func signalContext() (context.Context, context.CancelFunc) {
	return osSignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// historyRange는 오늘 기준 days일 전부터 마지막으로 마감된 캔들까지의 구간입니다
func historyRange(interval domain.TimeInterval, days int) (time.Time, time.Time) {
	end := time.Now().UTC().Truncate(interval.Duration())
	return end.Add(-time.Duration(days) * 24 * time.Hour), end
}

func stringOr(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func intOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func backtestAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	logger := logrus.WithField("cmd", "backtest")
	ctx, cancel := signalContext()
	defer cancel()

	symbol := strings.ToUpper(stringOr(c.String("symbol"), cfg.Backtest.Symbol))
	interval, err := domain.ParseTimeInterval(stringOr(c.String("interval"), cfg.Backtest.Interval))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	days := intOr(c.Int("days"), cfg.Backtest.Days)
	source := stringOr(c.String("source"), cfg.Backtest.Source)

	strat, err := newStrategy(c, cfg)
	if err != nil {
		return err
	}
	execCfg, err := cfg.ExecutionConfig()
	if err != nil {
		return err
	}
	notifier := newNotifier(cfg, logger)

	var store *storage.Store
	if !c.Bool("no-store") || source == "db" {
		store, err = storage.Open(cfg.Storage.Driver, cfg.Storage.DSN, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	start, end := historyRange(interval, days)
	logger.WithFields(logrus.Fields{
		"symbol":   symbol,
		"interval": string(interval),
		"days":     days,
		"source":   source,
		"strategy": strat.GetName(),
	}).Info("백테스트 데이터 로드")

	var candles domain.CandleList
	switch source {
	case "db":
		candles, err = store.LoadCandles(ctx, symbol, interval, start, end)
	default:
		var candleStore market.CandleStore
		if store != nil {
			candleStore = store
		}
		collector := market.NewCollector(newBinance(cfg), candleStore,
			market.WithNotifier(notifier),
			market.WithCollectorLogger(logger),
		)
		candles, err = collector.Collect(ctx, symbol, interval, start, end)
	}
	if err != nil {
		return fmt.Errorf("캔들 데이터 로드 실패: %w", err)
	}
	logger.WithField("count", len(candles)).Info("캔들 데이터 로드 완료")

	btCfg := backtest.DefaultConfig()
	btCfg.InitialCapital = cfg.Engine.InitialCapital
	btCfg.Execution = execCfg
	btCfg.MaxOrdersPerSecond = cfg.Engine.MaxOrdersPerSecond

	report, err := backtest.NewDriver(btCfg, strat, logger).Run(ctx, candles)
	if err != nil {
		_ = notifier.SendError(ctx, err)
		return err
	}

	fmt.Println(report.Summary())

	if path := stringOr(c.String("report"), cfg.Backtest.ReportPath); path != "" {
		if err := report.SaveJSON(path); err != nil {
			return err
		}
		logger.WithField("path", path).Info("리포트 저장")
	}
	if store != nil && !c.Bool("no-store") {
		if err := store.SaveReport(ctx, report); err != nil {
			return err
		}
	}

	if err := notifier.SendInfo(ctx, fmt.Sprintf("✅ %s %s 백테스트 완료: 수익률 %.2f%%, 거래 %d건, 최대 낙폭 %.2f%%",
		symbol, strat.GetName(), report.Metrics.TotalReturn, report.Metrics.TotalTrades, report.Metrics.MaxDrawdown)); err != nil {
		logger.WithError(err).Warn("완료 알림 전송 실패")
	}
	return nil
}

func paperAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	logger := logrus.WithField("cmd", "paper")

	// 실거래 백엔드는 제공하지 않음
	if cfg.Engine.Mode == config.ModeLive {
		return fmt.Errorf("%w: 실거래(LIVE) 모드는 지원하지 않습니다. ENGINE_MODE=DRY_RUN을 사용하세요", domain.ErrInvalidConfig)
	}

	strat, err := newStrategy(c, cfg)
	if err != nil {
		return err
	}
	execCfg, err := cfg.ExecutionConfig()
	if err != nil {
		return err
	}
	interval, err := domain.ParseTimeInterval(cfg.Engine.Interval)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier := newNotifier(cfg, logger)
	ctx, cancel := signalContext()
	defer cancel()

	var eng *engine.Engine
	eng = engine.New(engine.Config{
		Mode:               engine.ModeDryRun,
		Symbols:            cfg.Engine.Symbols,
		InitialCapital:     cfg.Engine.InitialCapital,
		MaxOrdersPerSecond: cfg.Engine.MaxOrdersPerSecond,
		HeartbeatInterval:  cfg.Engine.HeartbeatInterval,
		CommissionRate:     execCfg.CommissionRate,
		HistoryLimit:       500,
	}, strat,
		engine.WithLogger(logger),
		engine.WithFillHook(func(f domain.Fill) {
			logger.WithFields(logrus.Fields{
				"symbol": f.Symbol,
				"side":   string(f.Side),
				"qty":    f.Quantity,
				"price":  f.Price,
			}).Info("체결")
		}),
		engine.WithTradeHook(func(t domain.CompletedTrade) {
			// 엔진 루프를 막지 않도록 별도 고루틴에서 처리
			go func() {
				sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := store.SaveTrades(sendCtx, eng.ID(), []domain.CompletedTrade{t}); err != nil {
					logger.WithError(err).Warn("거래 저장 실패")
				}
				if err := notifier.SendTrade(sendCtx, t); err != nil {
					logger.WithError(err).Warn("거래 알림 전송 실패")
				}
			}()
		}),
	)

	stream := market.NewStream(cfg.Binance.StreamURL, cfg.Engine.Symbols, interval,
		market.WithReconnectDelay(cfg.Engine.ReconnectDelay),
		market.WithMaxReconnectAttempts(cfg.Engine.MaxReconnectAttempts),
		market.WithStreamLogger(logger),
	)
	if err := eng.Start(ctx, stream.Start(ctx)); err != nil {
		return err
	}

	statusTask := engine.NewStatusTask(eng, logger, store.SaveStatus)
	sched := scheduler.NewScheduler(cfg.Engine.StatusInterval, statusTask, scheduler.WithLogger(logger))
	go func() {
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("스케줄러 실행 중 에러 발생")
		}
	}()

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Addr, eng, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.WithError(err).Error("상태 서버 실행 실패")
				_ = notifier.SendError(ctx, err)
			}
		}()
	}

	if err := notifier.SendInfo(ctx, fmt.Sprintf("🚀 모의 실행 시작: %s (%s, %s)",
		strat.GetName(), strings.Join(cfg.Engine.Symbols, ","), interval)); err != nil {
		logger.WithError(err).Warn("시작 알림 전송 실패")
	}

	select {
	case <-ctx.Done():
		logger.Info("시스템 종료 신호 수신")
	case <-eng.Done():
		logger.Warn("엔진 루프가 종료되었습니다")
	}

	sched.Stop()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := eng.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("엔진 종료 실패")
	}
	// 마지막 상태 기록
	if err := statusTask.Execute(stopCtx); err != nil {
		logger.WithError(err).Warn("최종 상태 저장 실패")
	}

	st := eng.Status()
	if err := notifier.SendInfo(stopCtx, fmt.Sprintf("👋 모의 실행 종료: 자산 $%.2f, 주문 %d건, 체결 %d건",
		st.Equity, st.TotalOrders, st.TotalFills)); err != nil {
		logger.WithError(err).Warn("종료 알림 전송 실패")
	}
	return nil
}

func fetchAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	logger := logrus.WithField("cmd", "fetch")
	ctx, cancel := signalContext()
	defer cancel()

	symbol := strings.ToUpper(stringOr(c.String("symbol"), cfg.Backtest.Symbol))
	interval, err := domain.ParseTimeInterval(stringOr(c.String("interval"), cfg.Backtest.Interval))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	days := intOr(c.Int("days"), cfg.Backtest.Days)

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	collector := market.NewCollector(newBinance(cfg), store,
		market.WithNotifier(newNotifier(cfg, logger)),
		market.WithCollectorLogger(logger),
	)
	start, end := historyRange(interval, days)
	candles, err := collector.Collect(ctx, symbol, interval, start, end)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s 캔들 %d개 수집 (%s ~ %s)\n", symbol, interval, len(candles),
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	return nil
}

func runsAction(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN, logrus.WithField("cmd", "runs"))
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), c.Int("limit"))
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %-10s %-20s %s ~ %s  수익률 %7.2f%%  낙폭 %6.2f%%  거래 %d\n",
			shortID(r.RunID), r.Strategy, strings.Join(r.Symbols, ","),
			r.StartTime.Format("2006-01-02"), r.EndTime.Format("2006-01-02"),
			r.TotalReturn, r.MaxDrawdown, r.TotalTrades)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func strategiesAction(_ *cli.Context) error {
	for _, name := range newRegistry().ListStrategies() {
		fmt.Println(name)
	}
	return nil
}
