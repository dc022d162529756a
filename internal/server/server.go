package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/assist-by/phoenix-engine/internal/domain"
	"github.com/assist-by/phoenix-engine/internal/engine"
)

// StatusProvider는 상태 API가 조회하는 엔진 스냅샷입니다
type StatusProvider interface {
	Status() engine.Status
	Positions() []domain.Position
	ActiveOrders() []domain.Order
	Trades() []domain.CompletedTrade
	EquityCurve() []domain.EquitySnapshot
}

// Server는 엔진 상태를 조회하는 읽기 전용 HTTP API입니다
type Server struct {
	addr     string
	provider StatusProvider
	logger   *logrus.Entry
	router   chi.Router
}

// New는 새로운 상태 서버를 생성합니다
func New(addr string, provider StatusProvider, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{
		addr:     addr,
		provider: provider,
		logger:   logger.WithField("component", "status_server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.WithError(err).Error("healthcheck 응답 실패")
		}
	})
	r.Get("/status", s.handleStatus)
	r.Get("/positions", s.handlePositions)
	r.Get("/positions/{symbol}", s.handlePosition)
	r.Get("/orders", s.handleOrders)
	r.Get("/trades", s.handleTrades)
	r.Get("/equity", s.handleEquity)
	return r
}

// Handler는 라우터를 반환합니다
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run은 컨텍스트가 끝날 때까지 서버를 실행하고 종료 시 진행 중인 요청을 정리합니다
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("상태 서버 시작 %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("상태 서버 종료 중...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("상태 서버 종료 실패")
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.provider.Status())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.provider.Positions()
	if symbol := symbolParam(r); symbol != "" {
		filtered := positions[:0:0]
		for _, p := range positions {
			if p.Symbol == symbol {
				filtered = append(filtered, p)
			}
		}
		positions = filtered
	}
	s.writeJSON(w, http.StatusOK, nonNil(positions))
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	for _, p := range s.provider.Positions() {
		if p.Symbol == symbol {
			s.writeJSON(w, http.StatusOK, p)
			return
		}
	}
	s.writeError(w, http.StatusNotFound, symbol+" 포지션이 없습니다")
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.provider.ActiveOrders()
	if symbol := symbolParam(r); symbol != "" {
		filtered := orders[:0:0]
		for _, o := range orders {
			if o.Symbol == symbol {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	s.writeJSON(w, http.StatusOK, nonNil(orders))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}
	trades := s.provider.Trades()
	if symbol := symbolParam(r); symbol != "" {
		filtered := trades[:0:0]
		for _, t := range trades {
			if t.Symbol == symbol {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}
	s.writeJSON(w, http.StatusOK, nonNil(tail(trades, limit)))
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(tail(s.provider.EquityCurve(), limit)))
}

// limitParam은 limit 쿼리를 읽습니다. 0이면 제한이 없습니다.
func (s *Server) limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return limit, true
}

func symbolParam(r *http.Request) string {
	return strings.ToUpper(r.URL.Query().Get("symbol"))
}

// tail은 마지막 limit개를 반환합니다
func tail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("응답 인코딩 실패")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
