// Package sink holds the delivery sinks the daemon can write to: a JSONL
// writer (stdout or file) and a log-only sink.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"notiflink/internal/delivery"
	"notiflink/internal/notification"
	logx "notiflink/pkg/logx"
)

var ErrClosed = errors.New("sink closed")

// Sink is a delivery.Sink that owns an output.
type Sink interface {
	delivery.Sink
	io.Closer
}

// Open picks the sink for output: "" or "log" logs, "-" writes JSONL to
// stdout, anything else is a JSONL file path opened for append.
func Open(output string, log logx.Logger) (Sink, error) {
	switch out := strings.TrimSpace(output); out {
	case "", "log":
		return NewLog(log), nil
	case "-":
		return NewJSONL(os.Stdout, nil), nil
	default:
		if dir := filepath.Dir(out); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sink dir: %w", err)
			}
		}
		f, err := os.OpenFile(out, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open sink %q: %w", out, err)
		}
		return NewJSONL(f, f), nil
	}
}

// Line is one record written by the JSONL sink.
type Line struct {
	Kind   delivery.Kind                `json:"kind"`
	At     time.Time                    `json:"at"`
	Spec   *notification.Spec           `json:"spec,omitempty"`
	Device string                       `json:"device,omitempty"`
	ID     int64                        `json:"id,omitempty"`
	Call   *notification.CallSpec       `json:"call,omitempty"`
	Music  *notification.MusicSpec      `json:"music,omitempty"`
	State  *notification.MusicStateSpec `json:"state,omitempty"`
}

// JSONL writes one JSON object per sink call.
type JSONL struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	closed bool
	now    func() time.Time
}

// NewJSONL writes to w; closer, if non-nil, is closed by Close.
func NewJSONL(w io.Writer, closer io.Closer) *JSONL {
	return &JSONL{enc: json.NewEncoder(w), closer: closer, now: time.Now}
}

func (s *JSONL) write(ctx context.Context, l Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	l.At = s.now().UTC()
	if err := s.enc.Encode(l); err != nil {
		return fmt.Errorf("write %s: %w", l.Kind, err)
	}
	return nil
}

func (s *JSONL) Deliver(ctx context.Context, spec notification.Spec) error {
	return s.write(ctx, Line{Kind: delivery.KindDeliver, Spec: &spec, ID: spec.ID})
}

func (s *JSONL) DeleteNotification(ctx context.Context, device string, id int64) error {
	return s.write(ctx, Line{Kind: delivery.KindDelete, Device: device, ID: id})
}

func (s *JSONL) SetCallState(ctx context.Context, call notification.CallSpec) error {
	return s.write(ctx, Line{Kind: delivery.KindCall, Call: &call})
}

func (s *JSONL) SetMusicInfo(ctx context.Context, music notification.MusicSpec) error {
	return s.write(ctx, Line{Kind: delivery.KindMusicInfo, Music: &music})
}

func (s *JSONL) SetMusicState(ctx context.Context, state notification.MusicStateSpec) error {
	return s.write(ctx, Line{Kind: delivery.KindMusicState, State: &state})
}

func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Log only logs what would have been sent.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log { return &Log{log: log.With(logx.String("comp", "sink"))} }

func (s *Log) Deliver(_ context.Context, spec notification.Spec) error {
	s.log.Info("deliver",
		logx.Int64("id", spec.ID),
		logx.String("src", spec.SourceAppID),
		logx.String("type", spec.Type.String()),
		logx.String("title", spec.Title),
		logx.Int("actions", len(spec.Actions)),
	)
	return nil
}

func (s *Log) DeleteNotification(_ context.Context, device string, id int64) error {
	s.log.Info("delete", logx.String("device", device), logx.Int64("id", id))
	return nil
}

func (s *Log) SetCallState(_ context.Context, call notification.CallSpec) error {
	s.log.Info("call", logx.String("command", call.Command.String()), logx.String("src", call.SourceAppID))
	return nil
}

func (s *Log) SetMusicInfo(_ context.Context, music notification.MusicSpec) error {
	s.log.Info("music info", logx.String("artist", music.Artist), logx.String("track", music.Track))
	return nil
}

func (s *Log) SetMusicState(_ context.Context, state notification.MusicStateSpec) error {
	s.log.Info("music state", logx.String("state", state.State.String()), logx.Int("position", state.PositionSec))
	return nil
}

func (s *Log) Close() error { return nil }
