package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/policykb/taxkb/internal/core/domain"
	"github.com/policykb/taxkb/internal/infrastructure/resilience"
)

const workerGroup = "taxkb-workers"

// stageTrigger is the wire form of a pipeline stage request.
type stageTrigger struct {
	Stage string `json:"stage"`
	JobID string `json:"job_id"`
}

type Queue struct {
	conn          *nats.Conn
	ingestSubject string
	stageSubject  string
	executor      *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, ingestSubject, stageSubject string) (*Queue, error) {
	return NewWithOptions(url, ingestSubject, stageSubject, Options{})
}

func NewWithOptions(url, ingestSubject, stageSubject string, options Options) (*Queue, error) {
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

	conn, err := nats.Connect(
		url,
		nats.Name("taxkb"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:          conn,
		ingestSubject: ingestSubject,
		stageSubject:  stageSubject,
		executor:      options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishRawPolicy(ctx context.Context, raw domain.RawPolicy) error {
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal raw policy: %w", err)
	}
	return q.publish(ctx, "nats.publish_raw", q.ingestSubject, payload)
}

func (q *Queue) SubscribeRawPolicies(ctx context.Context, handler func(context.Context, domain.RawPolicy) error) error {
	return q.subscribe(ctx, q.ingestSubject, func(handlerCtx context.Context, data []byte) error {
		var raw domain.RawPolicy
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("unmarshal raw policy: %w", err)
		}
		return handler(handlerCtx, raw)
	})
}

func (q *Queue) PublishStageTrigger(ctx context.Context, stage domain.PipelineStage, jobID string) error {
	payload, err := json.Marshal(stageTrigger{Stage: string(stage), JobID: jobID})
	if err != nil {
		return fmt.Errorf("marshal stage trigger: %w", err)
	}
	return q.publish(ctx, "nats.publish_stage", q.stageSubject, payload)
}

func (q *Queue) SubscribeStageTriggers(ctx context.Context, handler func(context.Context, domain.PipelineStage, string) error) error {
	return q.subscribe(ctx, q.stageSubject, func(handlerCtx context.Context, data []byte) error {
		var trigger stageTrigger
		if err := json.Unmarshal(data, &trigger); err != nil {
			return fmt.Errorf("unmarshal stage trigger: %w", err)
		}
		return handler(handlerCtx, domain.PipelineStage(trigger.Stage), trigger.JobID)
	})
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (q *Queue) subscribe(ctx context.Context, subject string, handle func(context.Context, []byte) error) error {
	sub, err := q.conn.QueueSubscribe(subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handle(handlerCtx, msg.Data); err != nil {
			slog.Error("queue_handler_failed", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
