package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"notiflink/internal/host"
	"notiflink/internal/notification"
	logx "notiflink/pkg/logx"
)

// maxLine bounds one JSONL record; pictures travel by reference, not inline.
const maxLine = 1 << 20

// Record types understood by the stream reader.
const (
	RecordPosted  = "posted"
	RecordRemoved = "removed"
	RecordMedia   = "media"
	RecordTrigger = "trigger"
	RecordService = "service"
	RecordUser    = "user"
)

// Trigger names carried by trigger records.
const (
	TriggerOpen       = "open"
	TriggerDismiss    = "dismiss"
	TriggerDismissAll = "dismiss_all"
	TriggerMute       = "mute"
	TriggerReply      = "reply"
	TriggerInvoke     = "invoke"
)

var ErrUnknownRecord = errors.New("unknown record type")

// Record is one line of the event stream.
type Record struct {
	Type    string        `json:"type"`
	Event   *host.Event   `json:"event,omitempty"`
	Ranking *host.Ranking `json:"ranking,omitempty"`

	Music *notification.MusicSpec      `json:"music,omitempty"`
	State *notification.MusicStateSpec `json:"state,omitempty"`

	Trigger string `json:"trigger,omitempty"`
	Handle  int64  `json:"handle,omitempty"`
	Text    string `json:"text,omitempty"`

	Running *bool `json:"running,omitempty"`
	User    *int  `json:"user,omitempty"`
}

// Target receives what the stream carries. *pipeline.Pipeline satisfies it.
type Target interface {
	OnPosted(ctx context.Context, ev host.Event, ranking *host.Ranking) error
	OnRemoved(ctx context.Context, ev host.Event) error
	OnMediaSession(ctx context.Context, music notification.MusicSpec, state notification.MusicStateSpec) error

	Open(ctx context.Context, id int64) error
	Dismiss(ctx context.Context, id int64) error
	DismissAll(ctx context.Context) error
	Mute(ctx context.Context, id int64) error
	Reply(ctx context.Context, handle int64, text string) error
	Invoke(ctx context.Context, handle int64, reply string) error
}

// StreamStats counts what one Run consumed.
type StreamStats struct {
	Lines    int
	Records  int
	Skipped  int
	Rejected int
}

// Stream replays a JSONL event stream into the host simulator and a target.
type Stream struct {
	host   *Host
	target Target
	log    logx.Logger
}

func NewStream(h *Host, target Target, log logx.Logger) *Stream {
	return &Stream{host: h, target: target, log: log.With(logx.String("comp", "stream"))}
}

// Run reads records until EOF or ctx is done. Malformed lines are logged and
// skipped; target errors are logged and counted, never fatal.
func (s *Stream) Run(ctx context.Context, r io.Reader) (StreamStats, error) {
	var st StreamStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Lines++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			st.Skipped++
			s.log.Warn("stream record skipped", logx.Int("line", st.Lines), logx.Err(err))
			continue
		}
		st.Records++
		if err := s.Apply(ctx, rec); err != nil {
			st.Rejected++
			s.log.Warn("stream record rejected",
				logx.Int("line", st.Lines),
				logx.String("type", rec.Type),
				logx.Err(err),
			)
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read stream: %w", err)
	}
	return st, nil
}

// Apply handles one record.
func (s *Stream) Apply(ctx context.Context, rec Record) error {
	switch strings.ToLower(strings.TrimSpace(rec.Type)) {
	case RecordPosted:
		if rec.Event == nil {
			return fmt.Errorf("posted: missing event")
		}
		ev := *rec.Event
		s.host.Post(&ev)
		return s.target.OnPosted(ctx, ev, rec.Ranking)

	case RecordRemoved:
		if rec.Event == nil {
			return fmt.Errorf("removed: missing event")
		}
		ev := *rec.Event
		if live, ok := s.host.Remove(ev.Key); ok && ev.Package == "" {
			ev = live
		}
		return s.target.OnRemoved(ctx, ev)

	case RecordMedia:
		var music notification.MusicSpec
		var state notification.MusicStateSpec
		if rec.Music != nil {
			music = *rec.Music
		}
		if rec.State != nil {
			state = *rec.State
		}
		return s.target.OnMediaSession(ctx, music, state)

	case RecordTrigger:
		return s.trigger(ctx, rec)

	case RecordService:
		if rec.Running == nil {
			return fmt.Errorf("service: missing running")
		}
		s.host.SetRunning(*rec.Running)
		return nil

	case RecordUser:
		if rec.User == nil {
			return fmt.Errorf("user: missing user")
		}
		s.host.SetCurrentUser(*rec.User)
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownRecord, rec.Type)
	}
}

// flusher is implemented by targets that process events asynchronously.
type flusher interface {
	Flush(ctx context.Context) error
}

func (s *Stream) trigger(ctx context.Context, rec Record) error {
	// Handles exist only once earlier posts went through.
	if f, ok := s.target.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return err
		}
	}
	switch strings.ToLower(strings.TrimSpace(rec.Trigger)) {
	case TriggerOpen:
		return s.target.Open(ctx, rec.Handle)
	case TriggerDismiss:
		return s.target.Dismiss(ctx, rec.Handle)
	case TriggerDismissAll:
		return s.target.DismissAll(ctx)
	case TriggerMute:
		return s.target.Mute(ctx, rec.Handle)
	case TriggerReply:
		return s.target.Reply(ctx, rec.Handle, rec.Text)
	case TriggerInvoke:
		return s.target.Invoke(ctx, rec.Handle, rec.Text)
	default:
		return fmt.Errorf("%w: trigger %q", ErrUnknownRecord, rec.Trigger)
	}
}
