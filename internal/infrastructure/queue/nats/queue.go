package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/resilience"
)

const workerGroup = "artifact-expiry"

// Bus publishes and consumes conversion completion events on one subject.
type Bus struct {
	conn    *nats.Conn
	subject string
	guard   *resilience.Guard
	logger  *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	Guard                *resilience.Guard
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("file-toolbox"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:    conn,
		subject: subject,
		guard:   options.Guard,
		logger:  logger,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishConversionCompleted(ctx context.Context, event domain.ConversionCompleted) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := b.conn.Publish(b.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if b.guard != nil {
		err = b.guard.Do(ctx, "nats.publish", call, recordsFailure)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// SubscribeConversionCompleted blocks until ctx is done, then drains the subscription.
func (b *Bus) SubscribeConversionCompleted(ctx context.Context, handler func(context.Context, domain.ConversionCompleted) error) error {
	sub, err := b.conn.QueueSubscribe(b.subject, workerGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := decodeEvent(msg.Data)
		if err != nil {
			b.logger.Warn("conversion_event_decode_failed", "error", err)
			return
		}
		if err := handler(ctx, event); err != nil {
			b.logger.Error("conversion_event_handler_failed", "batch_id", event.BatchID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeEvent(event domain.ConversionCompleted) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode conversion event: %w", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.ConversionCompleted, error) {
	var event domain.ConversionCompleted
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.ConversionCompleted{}, fmt.Errorf("decode conversion event: %w", err)
	}
	if event.Filename == "" {
		return domain.ConversionCompleted{}, fmt.Errorf("decode conversion event: filename is empty")
	}
	return event, nil
}

// Noop drops events. It stands in when no NATS url is configured.
type Noop struct{}

func (Noop) PublishConversionCompleted(context.Context, domain.ConversionCompleted) error { return nil }
