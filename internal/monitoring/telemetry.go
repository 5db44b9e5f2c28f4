// Package monitoring - telemetry.go records events to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per
// line), appended immediately after each event for real-time tailing.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config       TelemetryConfig
	requestCount int
	mu           sync.Mutex
}

// NewTracker creates a telemetry tracker. When enabled with a log path,
// the parent directory and an empty log file are created up front so a
// tail -f can attach before the first request.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}

	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
		if f, err := os.Create(cfg.LogPath); err == nil {
			_ = f.Close()
		}
	}
	return t, nil
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// RecordRequest records a request event.
func (t *Tracker) RecordRequest(event *RequestEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		reqID := event.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		log.Info().
			Str("request_id", reqID).
			Str("run_id", event.RunID).
			Str("provider", event.Provider).
			Int("status", event.StatusCode).
			Str("denial", event.DenialReason).
			Bool("success", event.Success).
			Msg("telemetry")
	}

	if t.config.LogPath != "" {
		if err := appendJSONL(t.config.LogPath, event); err != nil {
			log.Error().Err(err).Str("path", t.config.LogPath).Msg("telemetry: failed to write request event")
		} else {
			t.requestCount++
		}
	}
}

// RecordInit records a proxy initialization event.
func (t *Tracker) RecordInit(event *InitEvent) {
	if !t.config.Enabled || t.config.LogPath == "" || event == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := appendJSONL(t.config.LogPath, event); err != nil {
		log.Error().Err(err).Str("path", t.config.LogPath).Msg("telemetry: failed to write init event")
	}
}
