package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/assist-by/phoenix-engine/internal/backtest"
	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/engine"
	"github.com/assist-by/phoenix-engine/internal/order"
)

// ErrNotFound는 요청한 기록이 없을 때 반환됩니다
var ErrNotFound = errors.New("기록을 찾을 수 없습니다")

const batchSize = 500

// Store는 캔들, 감사 기록, 거래, 자산 곡선, 백테스트 리포트를 저장하는 gorm 저장소입니다
type Store struct {
	db     *gorm.DB
	logger *logrus.Entry
}

// Dialector는 드라이버 이름에 맞는 gorm 다이얼렉터를 반환합니다
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: DB_DSN이 비어있습니다", domain.ErrInvalidConfig)
	}
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: 지원하지 않는 DB 드라이버 %q", domain.ErrInvalidConfig, driver)
	}
}

// Open은 DB에 연결하고 스키마를 마이그레이션합니다
func Open(driver, dsn string, logger *logrus.Entry) (*Store, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("DB 연결 실패 (%s): %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("DB 핸들 조회 실패: %w", err)
	}
	if strings.HasPrefix(strings.ToLower(driver), "sqlite") {
		// sqlite는 동시 쓰기를 지원하지 않음
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	s := New(db, logger)
	if err := s.Migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	s.logger.WithField("driver", driver).Info("DB 연결 완료")
	return s, nil
}

// New는 이미 열린 gorm 연결로 저장소를 만듭니다
func New(db *gorm.DB, logger *logrus.Entry) *Store {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{db: db, logger: logger.WithField("component", "storage")}
}

// Migrate는 모든 테이블을 생성하거나 갱신합니다
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("DB 마이그레이션 실패: %w", err)
	}
	return nil
}

// Close는 DB 연결을 닫습니다
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveCandles는 캔들을 저장하고 새로 추가된 개수를 반환합니다. 이미 있는 캔들은 건너뜁니다.
func (s *Store) SaveCandles(ctx context.Context, candles []domain.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	records := make([]CandleRecord, 0, len(candles))
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return 0, err
		}
		records = append(records, candleRecordFrom(c))
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "open_time"}},
			DoNothing: true,
		}).
		CreateInBatches(records, batchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("캔들 저장 실패: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// LoadCandles는 [start, end) 구간의 캔들을 시간 순서대로 읽습니다. end가 0이면 끝까지 읽습니다.
func (s *Store) LoadCandles(ctx context.Context, symbol string, interval domain.TimeInterval, start, end time.Time) (domain.CandleList, error) {
	q := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND open_time >= ?", symbol, string(interval), start.UTC())
	if !end.IsZero() {
		q = q.Where("open_time < ?", end.UTC())
	}

	var rows []CandleRecord
	if err := q.Order("open_time ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("캔들 조회 실패: %w", err)
	}

	candles := make(domain.CandleList, len(rows))
	for i, r := range rows {
		candles[i] = r.toDomain()
	}
	return candles, nil
}

// SaveAuditTrail은 실행(run)의 주문 감사 기록을 저장합니다
func (s *Store) SaveAuditTrail(ctx context.Context, runID string, events []order.AuditEvent) error {
	return saveAuditTrail(s.db.WithContext(ctx), runID, events)
}

func saveAuditTrail(tx *gorm.DB, runID string, events []order.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]AuditRecord, len(events))
	for i, e := range events {
		records[i] = AuditRecord{
			RunID:     runID,
			Seq:       e.Seq,
			OrderID:   e.OrderID,
			Kind:      string(e.Kind),
			Status:    string(e.Status),
			Timestamp: e.Timestamp.UTC(),
			Details:   e.Details,
		}
	}
	if err := tx.CreateInBatches(records, batchSize).Error; err != nil {
		return fmt.Errorf("감사 기록 저장 실패: %w", err)
	}
	return nil
}

// LoadAuditTrail은 실행의 감사 기록을 순번 순서로 읽습니다
func (s *Store) LoadAuditTrail(ctx context.Context, runID string) ([]order.AuditEvent, error) {
	var rows []AuditRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("감사 기록 조회 실패: %w", err)
	}
	events := make([]order.AuditEvent, len(rows))
	for i, r := range rows {
		events[i] = r.toDomain()
	}
	return events, nil
}

// SaveTrades는 완료 거래를 저장합니다
func (s *Store) SaveTrades(ctx context.Context, runID string, trades []domain.CompletedTrade) error {
	return saveTrades(s.db.WithContext(ctx), runID, trades)
}

func saveTrades(tx *gorm.DB, runID string, trades []domain.CompletedTrade) error {
	if len(trades) == 0 {
		return nil
	}
	records := make([]TradeRecord, len(trades))
	for i, t := range trades {
		records[i] = tradeRecordFrom(runID, t)
	}
	if err := tx.CreateInBatches(records, batchSize).Error; err != nil {
		return fmt.Errorf("거래 저장 실패: %w", err)
	}
	return nil
}

// LoadTrades는 실행의 완료 거래를 청산 시각 순서로 읽습니다
func (s *Store) LoadTrades(ctx context.Context, runID string) ([]domain.CompletedTrade, error) {
	var rows []TradeRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("exit_time ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("거래 조회 실패: %w", err)
	}
	trades := make([]domain.CompletedTrade, len(rows))
	for i, r := range rows {
		trades[i] = r.toDomain()
	}
	return trades, nil
}

// SaveEquityCurve는 자산 곡선을 저장합니다
func (s *Store) SaveEquityCurve(ctx context.Context, runID string, curve []domain.EquitySnapshot) error {
	return saveEquityCurve(s.db.WithContext(ctx), runID, curve)
}

func saveEquityCurve(tx *gorm.DB, runID string, curve []domain.EquitySnapshot) error {
	if len(curve) == 0 {
		return nil
	}
	records := make([]EquityRecord, len(curve))
	for i, snap := range curve {
		records[i] = equityRecordFrom(runID, snap)
	}
	if err := tx.CreateInBatches(records, batchSize).Error; err != nil {
		return fmt.Errorf("자산 곡선 저장 실패: %w", err)
	}
	return nil
}

// LoadEquityCurve는 실행의 자산 곡선을 시간 순서로 읽습니다
func (s *Store) LoadEquityCurve(ctx context.Context, runID string) ([]domain.EquitySnapshot, error) {
	var rows []EquityRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("snapshot_time ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("자산 곡선 조회 실패: %w", err)
	}
	curve := make([]domain.EquitySnapshot, len(rows))
	for i, r := range rows {
		curve[i] = r.toDomain()
	}
	return curve, nil
}

// SaveReport는 백테스트 리포트와 그 거래, 자산 곡선, 감사 기록을 한 트랜잭션으로 저장합니다
func (s *Store) SaveReport(ctx context.Context, report *backtest.Report) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("%w: 실행 ID가 없는 리포트", domain.ErrInvalidConfig)
	}
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("리포트 직렬화 실패: %w", err)
	}

	run := RunRecord{
		RunID:       report.RunID,
		Strategy:    report.Strategy,
		Symbols:     strings.Join(report.Symbols, ","),
		StartTime:   report.StartTime.UTC(),
		EndTime:     report.EndTime.UTC(),
		FinalEquity: report.FinalEquity,
		TotalReturn: report.Metrics.TotalReturn,
		MaxDrawdown: report.Metrics.MaxDrawdown,
		TotalTrades: report.Metrics.TotalTrades,
		WinRate:     report.Metrics.WinRate,
		Report:      string(blob),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("실행 기록 저장 실패: %w", err)
		}
		if err := saveTrades(tx, report.RunID, report.Trades); err != nil {
			return err
		}
		if err := saveEquityCurve(tx, report.RunID, report.EquityCurve); err != nil {
			return err
		}
		return saveAuditTrail(tx, report.RunID, report.AuditTrail)
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"trades": len(report.Trades),
		"points": len(report.EquityCurve),
	}).Info("백테스트 리포트 저장")
	return nil
}

// LoadReport는 저장된 백테스트 리포트를 읽습니다
func (s *Store) LoadReport(ctx context.Context, runID string) (*backtest.Report, error) {
	var run RunRecord
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: 실행 %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("실행 기록 조회 실패: %w", err)
	}

	var report backtest.Report
	if err := json.Unmarshal([]byte(run.Report), &report); err != nil {
		return nil, fmt.Errorf("리포트 역직렬화 실패: %w", err)
	}
	return &report, nil
}

// RunSummary는 저장된 백테스트 실행 목록의 한 줄입니다
type RunSummary struct {
	RunID       string
	Strategy    string
	Symbols     []string
	StartTime   time.Time
	EndTime     time.Time
	FinalEquity float64
	TotalReturn float64
	MaxDrawdown float64
	TotalTrades int
	WinRate     float64
	CreatedAt   time.Time
}

// ListRuns는 최근 실행부터 최대 limit개의 요약을 반환합니다
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []RunRecord
	err := s.db.WithContext(ctx).
		Omit("report").
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("실행 목록 조회 실패: %w", err)
	}

	out := make([]RunSummary, len(rows))
	for i, r := range rows {
		var symbols []string
		if r.Symbols != "" {
			symbols = strings.Split(r.Symbols, ",")
		}
		out[i] = RunSummary{
			RunID:       r.RunID,
			Strategy:    r.Strategy,
			Symbols:     symbols,
			StartTime:   r.StartTime.UTC(),
			EndTime:     r.EndTime.UTC(),
			FinalEquity: r.FinalEquity,
			TotalReturn: r.TotalReturn,
			MaxDrawdown: r.MaxDrawdown,
			TotalTrades: r.TotalTrades,
			WinRate:     r.WinRate,
			CreatedAt:   r.CreatedAt,
		}
	}
	return out, nil
}

// SaveStatus는 엔진 상태 한 건을 기록합니다. engine.StatusSink로 사용할 수 있습니다.
func (s *Store) SaveStatus(ctx context.Context, st engine.Status) error {
	rec := StatusRecord{
		EngineID:      st.EngineID,
		State:         st.State.String(),
		Mode:          st.Mode,
		Strategy:      st.Strategy,
		TotalOrders:   st.TotalOrders,
		ActiveOrders:  st.ActiveOrders,
		TotalFills:    st.TotalFills,
		OpenPositions: st.OpenPositions,
		Equity:        st.Equity,
		Cash:          st.Cash,
		UnrealizedPnL: st.UnrealizedPnL,
		RealizedPnL:   st.RealizedPnL,
		Errors:        st.Errors,
		Timestamp:     st.Timestamp.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("엔진 상태 저장 실패: %w", err)
	}
	return nil
}

// LatestStatus는 엔진의 마지막 상태 기록을 반환합니다
func (s *Store) LatestStatus(ctx context.Context, engineID string) (StatusRecord, error) {
	var rec StatusRecord
	err := s.db.WithContext(ctx).Where("engine_id = ?", engineID).Order("recorded_at DESC, id DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, fmt.Errorf("%w: 엔진 %s 상태", ErrNotFound, engineID)
	}
	if err != nil {
		return rec, fmt.Errorf("엔진 상태 조회 실패: %w", err)
	}
	return rec, nil
}
