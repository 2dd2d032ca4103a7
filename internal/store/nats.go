package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jmylchreest/mediacrawl/internal/model"
	"github.com/jmylchreest/mediacrawl/internal/version"
)

// DefaultNATSSubject prefixes record subjects when none is configured.
const DefaultNATSSubject = "mediacrawl"

var natsTracer = otel.Tracer("github.com/jmylchreest/mediacrawl/internal/store")

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSSink publishes every record as JSON on "<subject>.<kind>". Consumers
// upsert on the Nats-Msg-Id header, which JetStream also uses to drop
// duplicates.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink connects to url.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if subject == "" {
		subject = DefaultNATSSubject
	}
	nc, err := nats.Connect(url, nats.Name(version.UserAgent()))
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

// newMessage builds the message for r. Trace context from ctx is injected
// into the headers.
func newMessage(ctx context.Context, subject string, kind Kind, r model.Record) (*nats.Msg, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("nats: encode %s: %w", kind, err)
	}
	msg := nats.NewMsg(subject + "." + string(kind))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, string(kind)+":"+r.Key())
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return msg, nil
}

func (s *NATSSink) publish(ctx context.Context, kind Kind, r model.Record) error {
	ctx, span := natsTracer.Start(ctx, "store.publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("record.kind", string(kind)),
		attribute.String("record.key", r.Key()),
	)

	msg, err := newMessage(ctx, s.subject, kind, r)
	if err == nil {
		err = s.nc.PublishMsg(msg)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *NATSSink) StoreContent(ctx context.Context, r model.ContentRecord) error {
	return s.publish(ctx, KindContent, r)
}

func (s *NATSSink) StoreComment(ctx context.Context, r model.CommentRecord) error {
	return s.publish(ctx, KindComment, r)
}

func (s *NATSSink) StoreCreator(ctx context.Context, r model.CreatorRecord) error {
	return s.publish(ctx, KindCreator, r)
}

// Flush waits for the server to acknowledge everything published so far.
func (s *NATSSink) Flush() error {
	return s.nc.Flush()
}

// Close drains pending messages and closes the connection.
func (s *NATSSink) Close() error {
	if err := s.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

var (
	_ Sink    = (*NATSSink)(nil)
	_ Flusher = (*NATSSink)(nil)
)
