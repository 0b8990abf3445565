package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/mbeaudry/homelog/buffer"
	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Config contains the remote_write target settings.
type Config struct {
	URL             string
	Username        string
	Password        string
	PushIntervalSec int
}

// Pusher drains the ring buffer on an interval and pushes the readings to
// the remote_write endpoint, with retry and backoff. A failed push puts the
// readings back so the next tick retries them.
type Pusher struct {
	cfg      Config
	client   *http.Client
	buffer   *buffer.Ring[Reading]
	lastPush time.Time
	logger   *zap.Logger
}

// New creates a pusher over the given buffer.
func New(cfg Config, buf *buffer.Ring[Reading], logger *zap.Logger) *Pusher {
	return &Pusher{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: otelhttp.NewTransport(
				http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
					return "prometheus.remote_write"
				}),
			),
		},
		buffer:   buf,
		lastPush: time.Now(),
		logger:   logger,
	}
}

// Start runs the periodic push loop until the context is cancelled.
func (p *Pusher) Start(ctx context.Context) {
	interval := time.Duration(p.cfg.PushIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("prometheus pusher started", zap.Duration("push_interval", interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("prometheus pusher stopping")
			return
		case <-ticker.C:
			readings := p.buffer.Drain()
			if len(readings) == 0 {
				continue
			}
			if err := p.Push(ctx, readings); err != nil {
				p.logger.Error("failed to push metrics, re-buffering readings",
					zap.Error(err), zap.Int("readings", len(readings)))
				for _, r := range readings {
					p.buffer.Add(r)
				}
			}
		}
	}
}

// Push sends readings to the remote_write endpoint, retrying up to 3 times
// with exponential backoff.
func (p *Pusher) Push(ctx context.Context, readings []Reading) error {
	tracer := otel.Tracer("metrics")
	ctx, span := tracer.Start(ctx, "metrics.Push")
	defer span.End()
	span.SetAttributes(attribute.Int("metrics.readings", len(readings)))

	writeReq := &prompb.WriteRequest{Timeseries: BuildTimeSeries(readings)}

	var lastErr error
	backoff := time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				span.SetStatus(codes.Error, "context cancelled")
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
		if err := p.pushOnce(ctx, writeReq); err != nil {
			lastErr = err
			p.logger.Warn("push attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		p.lastPush = time.Now()
		p.logger.Info("metrics pushed",
			zap.Int("readings", len(readings)),
			zap.Int("series", len(writeReq.Timeseries)),
			zap.Int("attempt", attempt))
		span.SetStatus(codes.Ok, "push successful")
		return nil
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all attempts failed")
	return fmt.Errorf("failed to push metrics after 3 attempts: %w", lastErr)
}

func (p *Pusher) pushOnce(ctx context.Context, writeReq *prompb.WriteRequest) error {
	data, err := proto.Marshal(writeReq)
	if err != nil {
		return fmt.Errorf("failed to marshal write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.cfg.Username != "" && p.cfg.Password != "" {
		req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("remote_write returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// LastPushTime returns the time of the last successful push.
func (p *Pusher) LastPushTime() time.Time { return p.lastPush }
