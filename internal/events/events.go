// Package events publishes scan notifications to NATS JetStream so that
// downstream consumers (webhooks, analytics pipelines) can react to scans
// without polling the database.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/qr-tracker/qr-tracker/internal/config"
	"github.com/qr-tracker/qr-tracker/internal/telemetry"
)

// ScanRecordedSubject is appended to events.subject_prefix
const ScanRecordedSubject = "scans.recorded"

// ScanRecorded is the payload published after a scan row is inserted
type ScanRecorded struct {
	ScanID     int64     `json:"scan_id"`
	QRCodeID   int64     `json:"qrcode_id"`
	ShortCode  string    `json:"short_code"`
	Timestamp  time.Time `json:"timestamp"`
	ScanMethod string    `json:"scan_method"`
	DeviceType string    `json:"device_type,omitempty"`
	Country    string    `json:"country,omitempty"`
}

// Publisher delivers scan events
type Publisher interface {
	PublishScan(ctx context.Context, ev ScanRecorded) error
	Close()
}

// NoopPublisher drops every event. Used when events.enabled is false.
type NoopPublisher struct{}

func (NoopPublisher) PublishScan(context.Context, ScanRecorded) error { return nil }
func (NoopPublisher) Close()                                          {}

// NATSPublisher publishes to a JetStream stream
type NATSPublisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewPublisher returns a NATS publisher when events are enabled and a
// NoopPublisher otherwise.
func NewPublisher(cfg config.EventsConfig) (Publisher, error) {
	if !cfg.Enabled {
		return NoopPublisher{}, nil
	}
	return Connect(cfg)
}

// Connect dials NATS, opens JetStream and makes sure the stream exists
func Connect(cfg config.EventsConfig) (*NATSPublisher, error) {
	if cfg.NATSURL == "" {
		return nil, errors.New("events.nats_url is required")
	}

	opts := []nats.Option{
		nats.Name("qr-tracker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open jetstream: %w", err)
	}

	p := &NATSPublisher{
		nc:      nc,
		js:      js,
		subject: SubjectFor(cfg.SubjectPrefix),
	}
	if err := ensureStream(js, cfg.Stream, cfg.SubjectPrefix); err != nil {
		// Publishing still works if an operator manages the stream
		slog.Warn("failed to ensure jetstream stream", "stream", cfg.Stream, "error", err)
	}

	slog.Info("nats connected", "url", nc.ConnectedUrl(), "subject", p.subject)
	return p, nil
}

// SubjectFor joins prefix and ScanRecordedSubject
func SubjectFor(prefix string) string {
	if prefix == "" {
		return ScanRecordedSubject
	}
	return prefix + "." + ScanRecordedSubject
}

func ensureStream(js nats.JetStreamContext, name, prefix string) error {
	if name == "" {
		return nil
	}
	if _, err := js.StreamInfo(name); err == nil {
		return nil
	}

	subject := "scans.>"
	if prefix != "" {
		subject = prefix + ".scans.>"
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	return err
}

// Encode marshals an event for the wire
func Encode(ev ScanRecorded) ([]byte, error) {
	return json.Marshal(ev)
}

// PublishScan publishes ev with a unique message id for JetStream dedup
func (p *NATSPublisher) PublishScan(ctx context.Context, ev ScanRecorded) error {
	data, err := Encode(ev)
	if err != nil {
		telemetry.ScanEventsPublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to encode scan event: %w", err)
	}

	if _, err := p.js.Publish(p.subject, data, nats.MsgId(uuid.NewString()), nats.Context(ctx)); err != nil {
		telemetry.ScanEventsPublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish scan event: %w", err)
	}
	telemetry.ScanEventsPublishedTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close drains pending publishes and closes the connection
func (p *NATSPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
