// Package paymentgateway simulates an asynchronous card processor. Charges are
// queued to a fixed worker pool; each worker waits the configured latency,
// decides the outcome and posts it to the payment callback endpoint.
package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/jaevor/go-nanoid"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/payment"
)

const (
	refLength       = 21
	callbackTimeout = 10 * time.Second
	declinedReason  = "Insufficient funds"
)

type Worker struct {
	ID         int
	WorkerPool chan chan payment.Charge
	JobChannel chan payment.Charge
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan payment.Charge, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan payment.Charge),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, process func(payment.Charge)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				return
			}

			select {
			case charge := <-w.JobChannel:
				w.Logger.Debug("worker processing charge", "worker_id", w.ID, "ref_id", charge.RefID)
				process(charge)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type Config struct {
	Workers     int
	QueueSize   int
	Latency     time.Duration
	FailureRate float64
	CallbackURL string
	CallbackKey string
}

// Client implements payment.Gateway.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
	newRef     func() string

	mu   sync.Mutex
	rand *rand.Rand

	jobQueue   chan payment.Charge
	workerPool chan chan payment.Charge
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return nil, fmt.Errorf("failure rate must be within [0,1], got %v", cfg.FailureRate)
	}
	newRef, err := nanoid.Standard(refLength)
	if err != nil {
		return nil, fmt.Errorf("ref generator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: callbackTimeout},
		newRef:     newRef,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
		jobQueue:   make(chan payment.Charge, cfg.QueueSize),
		workerPool: make(chan chan payment.Charge, cfg.Workers),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.startWorkerPool()
	return c, nil
}

func (c *Client) startWorkerPool() {
	c.once.Do(func() {
		for i := 0; i < c.cfg.Workers; i++ {
			NewWorker(i, c.workerPool, c.logger).Start(c.ctx, &c.wg, c.process)
		}
		c.wg.Add(1)
		go c.dispatch()

		c.logger.Info("payment gateway worker pool started",
			"workers", c.cfg.Workers,
			"queue_size", cap(c.jobQueue))
	})
}

func (c *Client) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case charge := <-c.jobQueue:
			select {
			case jobChannel := <-c.workerPool:
				select {
				case jobChannel <- charge:
				case <-c.ctx.Done():
					return
				}
			case <-c.ctx.Done():
				return
			}
		case <-c.ctx.Done():
			c.logger.Info("payment gateway dispatcher shutting down")
			return
		}
	}
}

// NewRef returns a fresh gateway reference.
func (c *Client) NewRef() string {
	return c.newRef()
}

// Submit queues a charge without blocking. A full queue is reported as
// ErrGatewayBusy so the caller can retry later.
func (c *Client) Submit(ctx context.Context, charge payment.Charge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.ctx.Done():
		return internal.ErrGatewayBusy.WithMessage("payment gateway is shutting down")
	default:
	}

	select {
	case c.jobQueue <- charge:
		c.logger.Info("charge queued",
			"payment_id", charge.PaymentID,
			"ref_id", charge.RefID,
			"queue_length", len(c.jobQueue))
		return nil
	default:
		c.logger.Warn("charge queue full, rejecting",
			"payment_id", charge.PaymentID,
			"queue_capacity", cap(c.jobQueue))
		return internal.ErrGatewayBusy
	}
}

func (c *Client) Shutdown() {
	c.logger.Info("shutting down payment gateway client")
	c.cancel()
	c.wg.Wait()
	c.logger.Info("payment gateway client shutdown complete")
}

func (c *Client) process(charge payment.Charge) {
	if c.cfg.Latency > 0 {
		select {
		case <-time.After(c.cfg.Latency):
		case <-c.ctx.Done():
			c.logger.Info("charge cancelled", "ref_id", charge.RefID)
			return
		}
	}

	cb := payment.CallbackRequest{
		RefID:     charge.RefID,
		PaymentID: charge.PaymentID,
		Status:    payment.CallbackStatusSuccess,
	}
	if c.declined() {
		cb.Status = payment.CallbackStatusFailed
		cb.FailureReason = declinedReason
	}
	c.logger.Info("charge settled",
		"ref_id", charge.RefID,
		"amount", charge.Amount.String(),
		"status", cb.Status)

	if err := c.sendCallback(cb); err != nil {
		c.logger.Error("payment callback failed", "ref_id", charge.RefID, "error", err)
	}
}

func (c *Client) declined() bool {
	if c.cfg.FailureRate <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rand.Float64() < c.cfg.FailureRate
}

func (c *Client) sendCallback(cb payment.CallbackRequest) error {
	if c.cfg.CallbackURL == "" {
		return fmt.Errorf("no callback url configured")
	}
	body, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("marshal callback: %w", err)
	}

	ctx, cancel := context.WithTimeout(c.ctx, callbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payment.CallbackKeyHeader, c.cfg.CallbackKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
