package events

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

const (
	// DeliveryTimeout bounds a single POST to a subscriber.
	DeliveryTimeout  = 5 * time.Second
	DefaultUserAgent = "IdeaForge-Webhook/1.0"

	defaultWorkers   = 8
	defaultQueueSize = 256
)

// Subscriber is one agent's active webhook subscription.
type Subscriber struct {
	AgentID string
	URL     string
	Secret  string
	Events  []Kind
}

// Wants reports whether the subscription covers kind.
func (s Subscriber) Wants(kind Kind) bool {
	for _, k := range s.Events {
		if k == kind {
			return true
		}
	}
	return false
}

// SubscriberSource resolves subscriptions for a set of agents. Agents with no
// subscription are simply absent from the result.
type SubscriberSource interface {
	Subscribers(ctx context.Context, agentIDs []string) ([]Subscriber, error)
}

type DispatcherConfig struct {
	Source    SubscriberSource
	Logger    *slog.Logger
	Client    *http.Client
	Workers   int
	QueueSize int
	UserAgent string
	// Timeout overrides DeliveryTimeout; only tests set it.
	Timeout time.Duration
	Now     func() time.Time
}

// Dispatcher is the process-wide Notifier. Emit enqueues without blocking; a
// single runner resolves subscribers and hands each delivery to a bounded
// worker pool. Delivery is at most once: failures are logged and dropped.
type Dispatcher struct {
	source    SubscriberSource
	logger    *slog.Logger
	client    *http.Client
	userAgent string
	timeout   time.Duration
	now       func() time.Time

	queue   chan notice
	workers *pool.Pool
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

type notice struct {
	kind       Kind
	recipients []string
	data       map[string]any
	at         time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		source:    cfg.Source,
		logger:    cfg.Logger,
		client:    cfg.Client,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		now:       cfg.Now,
		done:      make(chan struct{}),
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.client == nil {
		d.client = &http.Client{}
	}
	if d.userAgent == "" {
		d.userAgent = DefaultUserAgent
	}
	if d.timeout <= 0 {
		d.timeout = DeliveryTimeout
	}
	if d.now == nil {
		d.now = time.Now
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	d.queue = make(chan notice, size)
	d.workers = pool.New().WithMaxGoroutines(workers)
	go d.run()
	return d
}

// Emit schedules kind for every participant except excludeAgentID. data must
// not be mutated by the caller afterwards.
func (d *Dispatcher) Emit(kind Kind, participantIDs []string, data map[string]any, excludeAgentID string) {
	recipients := make([]string, 0, len(participantIDs))
	seen := map[string]bool{}
	for _, id := range participantIDs {
		if id == "" || id == excludeAgentID || seen[id] {
			continue
		}
		seen[id] = true
		recipients = append(recipients, id)
	}
	if len(recipients) == 0 {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	n := notice{kind: kind, recipients: recipients, data: data, at: d.now()}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("webhook dispatcher closed, dropping event", "event", string(kind))
		return
	}
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("webhook queue full, dropping event", "event", string(kind), "recipients", len(recipients))
	}
}

// Close stops accepting events and waits for queued and in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
	d.workers.Wait()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		d.fanOut(n)
	}
}

func (d *Dispatcher) fanOut(n notice) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	subs, err := d.source.Subscribers(ctx, n.recipients)
	cancel()
	if err != nil {
		d.logger.Warn("webhook: resolve subscribers failed", "event", string(n.kind), "error", err)
		return
	}
	var body []byte
	for _, s := range subs {
		if !s.Wants(n.kind) {
			continue
		}
		if body == nil {
			body, err = json.Marshal(Envelope{
				Event:     n.kind,
				Timestamp: n.at.UTC().Format(time.RFC3339),
				Data:      n.data,
			})
			if err != nil {
				d.logger.Error("webhook: encode envelope failed", "event", string(n.kind), "error", err)
				return
			}
		}
		sub := s
		d.workers.Go(func() { d.deliver(sub, n.kind, body) })
	}
}

func (d *Dispatcher) deliver(s Subscriber, kind Kind, body []byte) {
	log := d.logger.With("event", string(kind), "agent_id", s.AgentID, "url_host", hostOf(s.URL))
	defer func() {
		if r := recover(); r != nil {
			log.Error("webhook: delivery panicked", "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		log.Warn("webhook: build request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set(HeaderEvent, string(kind))
	req.Header.Set(HeaderDelivery, uuid.NewString())
	if s.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(s.Secret, body))
	}
	res, err := d.client.Do(req)
	if err != nil {
		log.Warn("webhook: deliver failed", "error", err)
		return
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		log.Warn("webhook: receiver rejected delivery", "status", res.StatusCode)
		return
	}
	log.Debug("webhook: delivered")
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
