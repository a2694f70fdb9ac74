package stream

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// EnvelopeVersion is the current wire format version
const EnvelopeVersion = 1

// Event types published on the stream
const (
	EventScan       = "scan"
	EventStats      = "stats"
	EventRejections = "rejections"
)

// Envelope wraps every message pushed to stream clients
type Envelope struct {
	Timestamp time.Time       `json:"ts"`
	Type      string          `json:"type"`
	ScanID    string          `json:"scan_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Checksum  string          `json:"checksum"` // sha256(payload||ts||type||scan_id)
	Version   int             `json:"version"`
}

// NewEnvelope marshals payload and stamps the checksum
func NewEnvelope(eventType, scanID string, payload interface{}, now time.Time) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	e := &Envelope{
		Timestamp: now.UTC(),
		Type:      eventType,
		ScanID:    scanID,
		Payload:   raw,
		Version:   EnvelopeVersion,
	}
	e.SetChecksum()
	return e, nil
}

// ComputeChecksum generates a SHA256 checksum over the message content
func (e *Envelope) ComputeChecksum() string {
	hashInput := fmt.Sprintf("%s||%d||%s||%s",
		string(e.Payload),
		e.Timestamp.UnixNano(),
		e.Type,
		e.ScanID)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// SetChecksum computes and sets the checksum for the envelope
func (e *Envelope) SetChecksum() {
	e.Checksum = e.ComputeChecksum()
}

// Validate checks required fields and verifies the checksum when present
func Validate(e *Envelope) error {
	if e.Type == "" {
		return fmt.Errorf("envelope type is empty")
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("envelope payload is empty")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("envelope timestamp is zero")
	}
	if e.Version <= 0 {
		return fmt.Errorf("envelope version must be positive, got %d", e.Version)
	}

	if e.Checksum != "" {
		expected := e.ComputeChecksum()
		if e.Checksum != expected {
			return fmt.Errorf("envelope checksum mismatch: expected %s, got %s", expected, e.Checksum)
		}
	}
	return nil
}

// IsStale reports whether the message is older than maxAge
func (e *Envelope) IsStale(maxAge time.Duration) bool {
	return time.Since(e.Timestamp) > maxAge
}
