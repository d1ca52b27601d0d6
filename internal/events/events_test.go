package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qr-tracker/qr-tracker/internal/config"
)

// ---------------------------------------------------------------------------
// NewPublisher
// ---------------------------------------------------------------------------

func TestNewPublisher_DisabledIsNoop(t *testing.T) {
	p, err := NewPublisher(config.EventsConfig{Enabled: false, NATSURL: "nats://unused:4222"})
	require.NoError(t, err)

	_, ok := p.(NoopPublisher)
	assert.True(t, ok, "NewPublisher() = %T, want NoopPublisher", p)
	assert.NoError(t, p.PublishScan(context.Background(), ScanRecorded{ScanID: 1}))
	p.Close()
}

func TestNewPublisher_MissingURL(t *testing.T) {
	_, err := NewPublisher(config.EventsConfig{Enabled: true})
	assert.Error(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.EventsConfig{Enabled: true, NATSURL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// SubjectFor / Encode
// ---------------------------------------------------------------------------

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "qrtracker.scans.recorded", SubjectFor("qrtracker"))
	assert.Equal(t, "scans.recorded", SubjectFor(""))
}

func TestEncode(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	data, err := Encode(ScanRecorded{
		ScanID:     42,
		QRCodeID:   7,
		ShortCode:  "Ab3dEf9h",
		Timestamp:  ts,
		ScanMethod: "qr",
		Country:    "DE",
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, float64(42), got["scan_id"])
	assert.Equal(t, "Ab3dEf9h", got["short_code"])
	assert.Equal(t, "2026-03-14T15:09:26Z", got["timestamp"])
	assert.Equal(t, "DE", got["country"])
	_, hasDevice := got["device_type"]
	assert.False(t, hasDevice, "empty device_type should be omitted")
}
