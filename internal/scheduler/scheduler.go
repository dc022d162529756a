package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Task는 스케줄러가 실행할 작업을 정의하는 인터페이스입니다
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc는 함수를 Task로 사용하게 합니다
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }

// Scheduler는 정해진 간격의 경계 시각마다 작업을 실행하는 스케줄러입니다
type Scheduler struct {
	interval time.Duration
	task     Task
	logger   *logrus.Entry
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option은 스케줄러 옵션을 정의합니다
type Option func(*Scheduler)

// WithLogger는 로거를 설정합니다
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock은 현재 시각 함수를 바꿉니다
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler는 새로운 스케줄러를 생성합니다
func NewScheduler(interval time.Duration, task Task, opts ...Option) *Scheduler {
	s := &Scheduler{
		interval: interval,
		task:     task,
		logger:   logrus.NewEntry(logrus.StandardLogger()),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "scheduler")
	return s
}

// nextWait는 다음 간격 경계까지 남은 시간을 계산합니다
func (s *Scheduler) nextWait() (time.Duration, time.Time) {
	now := s.now()
	nextRun := now.Truncate(s.interval).Add(s.interval)
	return nextRun.Sub(now), nextRun
}

// Start는 컨텍스트가 끝나거나 Stop이 호출될 때까지 작업을 반복 실행합니다.
// 작업이 실패해도 다음 실행은 계속됩니다.
func (s *Scheduler) Start(ctx context.Context) error {
	waitDuration, nextRun := s.nextWait()
	s.logger.WithField("next", nextRun.Format("15:04:05")).
		Debugf("다음 실행까지 %v 대기", waitDuration.Round(time.Millisecond))

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.stopCh:
			return nil

		case <-timer.C:
			if err := s.task.Execute(ctx); err != nil {
				s.logger.WithError(err).Warn("작업 실행 실패")
			}

			waitDuration, nextRun = s.nextWait()
			s.logger.WithField("next", nextRun.Format("15:04:05")).
				Debugf("다음 실행까지 %v 대기", waitDuration.Round(time.Millisecond))
			timer.Reset(waitDuration)
		}
	}
}

// Stop은 스케줄러를 중지합니다. 여러 번 호출해도 됩니다.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
