// Package accesslog delivers access telemetry to the filter service.
// Logging is fire-and-forget: events are enqueued without blocking and
// delivered by background workers, and a delivery failure never reaches
// the request path.
package accesslog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/paywalls-net/filter/config"
	"github.com/paywalls-net/filter/metrics"
	"github.com/paywalls-net/filter/models"
	"github.com/paywalls-net/filter/services"
)

const logsPath = "/api/filter/access/logs"

// Config holds the worker pool configuration.
type Config struct {
	BufferSize  int // size of the event buffer channel
	WorkerCount int // number of concurrent delivery workers
}

// DefaultConfig returns the default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:  1024,
		WorkerCount: 2,
	}
}

// Service is the asynchronous access logger.
type Service struct {
	baseURL     string
	apiKey      string
	accountID   string
	timeout     time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
	eventChan   chan *models.AccessEvent
	workerCount int
	bufferSize  int
	dropped     uint64
	wg          sync.WaitGroup
	started     bool
	mu          sync.Mutex
}

// New creates a new access logger.
func New(cfg *config.Config, poolCfg Config, logger *zap.Logger) *Service {
	return &Service{
		baseURL:   cfg.Service.APIBaseURL,
		apiKey:    cfg.Service.APIKey,
		accountID: cfg.Service.AccountID,
		timeout:   cfg.Service.HTTPTimeout,
		httpClient: &http.Client{
			Timeout: cfg.Service.HTTPTimeout,
		},
		logger:      logger,
		eventChan:   make(chan *models.AccessEvent, poolCfg.BufferSize),
		workerCount: poolCfg.WorkerCount,
		bufferSize:  poolCfg.BufferSize,
	}
}

// Start starts the delivery workers.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("access logger already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started access logger",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits up to timeout for the pending
// ones to drain.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("access logger not started")
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info("stopping access logger", zap.Int("pending_events", len(s.eventChan)))

	close(s.eventChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("access logger stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("access logger stop timeout after %v", timeout)
	}
}

// Log enqueues the access record for one decided request. It never
// blocks: when the buffer is full the event is dropped and counted, and
// the caller's outcome is unaffected either way.
func (s *Service) Log(rc *models.RequestContext, decision *models.AuthorizationDecision) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		s.logger.Warn("access logger not started, dropping event",
			zap.String("resource", rc.Resource()))
		return
	}

	event := models.NewAccessEvent(s.accountID, rc, decision)

	select {
	case s.eventChan <- event:
	default:
		atomic.AddUint64(&s.dropped, 1)
		metrics.RecordDroppedAccessEvent()
		s.logger.Warn("access event buffer full, dropping event",
			zap.String("event_id", event.ID),
			zap.String("resource", event.Resource))
	}
}

// worker delivers events from the channel until it is closed.
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("access log worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.deliver(event); err != nil {
			s.logger.Error("failed to deliver access event",
				zap.Int("worker_id", id),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}

	s.logger.Debug("access log worker stopped", zap.Int("worker_id", id))
}

// deliver posts one event to the access log endpoint.
func (s *Service) deliver(event *models.AccessEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		return services.WrapDeserialization("failed to marshal access event", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+logsPath, bytes.NewReader(payload))
	if err != nil {
		return services.WrapRemoteFetch("failed to create access log request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemoteRequest("logs", "error", time.Since(start))
		return services.WrapRemoteFetch("access log delivery failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	metrics.ObserveRemoteRequest("logs", strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.NewFilterError(services.ErrorTypeRemoteFetch,
			fmt.Sprintf("access log delivery returned status %d", resp.StatusCode), nil)
	}

	return nil
}

// GetStats returns statistics about the logger.
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
		Dropped:       atomic.LoadUint64(&s.dropped),
	}
}

// Stats represents access logger statistics.
type Stats struct {
	BufferSize    int    `json:"buffer_size"`
	PendingEvents int    `json:"pending_events"`
	WorkerCount   int    `json:"worker_count"`
	Started       bool   `json:"started"`
	Dropped       uint64 `json:"dropped"`
}
