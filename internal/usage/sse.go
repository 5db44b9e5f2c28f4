package usage

import (
	"bytes"

	"github.com/tidwall/gjson"
)

const sseBufferSize = 4096

// SSEParser incrementally parses server-sent events from a streamed
// provider response and extracts usage. It only reads structured
// "data: {json}" events to avoid false positives from arbitrary text
// that might contain token-like key names.
//
// Anthropic reports input tokens in message_start (nested under
// "message") and final output tokens in message_delta (top level), so
// each event is probed both at the configured paths and under a
// "message." prefix, keeping the highest output count seen.
type SSEParser struct {
	fields Fields
	buffer []byte
	usage  Usage
}

// NewSSEParser creates a parser for the given provider field paths.
func NewSSEParser(f Fields) *SSEParser {
	return &SSEParser{
		fields: f,
		buffer: make([]byte, 0, sseBufferSize),
	}
}

// Feed appends a chunk of the response stream and parses any complete
// events.
func (p *SSEParser) Feed(chunk []byte) {
	p.buffer = append(p.buffer, chunk...)
	p.parse(false)
}

// Usage flushes the remaining buffer and returns the accumulated usage.
// ok is false when no event carried token counts.
func (p *SSEParser) Usage() (Usage, bool) {
	p.parse(true)
	return p.usage, p.usage.InputTokens > 0 || p.usage.OutputTokens > 0
}

func (p *SSEParser) parse(flush bool) {
	for {
		event, rest, ok := nextSSEEvent(p.buffer, flush)
		if !ok {
			return
		}
		p.buffer = rest
		p.parseEvent(event)
	}
}

func nextSSEEvent(buf []byte, flush bool) ([]byte, []byte, bool) {
	if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
		return buf[:idx], buf[idx+4:], true
	}
	if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
		return buf[:idx], buf[idx+2:], true
	}
	if flush {
		trimmed := bytes.TrimSpace(buf)
		if len(trimmed) > 0 {
			return trimmed, nil, true
		}
	}
	return nil, nil, false
}

func (p *SSEParser) parseEvent(event []byte) {
	lines := bytes.Split(event, []byte("\n"))
	dataLines := make([][]byte, 0, 2)

	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}
		dataLines = append(dataLines, payload)
	}

	if len(dataLines) == 0 {
		return
	}

	data := bytes.Join(dataLines, []byte("\n"))
	if !gjson.ValidBytes(data) {
		return
	}

	p.applyPath(data, p.fields.Input, &p.usage.InputTokens, false)
	p.applyPath(data, p.fields.Output, &p.usage.OutputTokens, true)

	if p.usage.Model == "" && p.fields.Model != "" {
		for _, path := range []string{p.fields.Model, "message." + p.fields.Model} {
			if m := gjson.GetBytes(data, path); m.Exists() {
				p.usage.Model = m.String()
				break
			}
		}
	}
}

// applyPath probes the path at top level and under "message.". Output
// counts grow monotonically across delta events; keep the maximum.
func (p *SSEParser) applyPath(data []byte, path string, dst *int, keepMax bool) {
	if path == "" {
		return
	}
	for _, candidate := range []string{path, "message." + path} {
		v := gjson.GetBytes(data, candidate)
		if !v.Exists() {
			continue
		}
		n := int(v.Int())
		if n <= 0 {
			continue
		}
		if !keepMax || n > *dst {
			*dst = n
		}
	}
}
