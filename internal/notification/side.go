package notification

import "fmt"

type CallCommand int

const (
	CallUndefined CallCommand = iota
	CallIncoming
	CallStart
	CallEnd
	CallReject
)

func (c CallCommand) String() string {
	switch c {
	case CallIncoming:
		return "incoming"
	case CallStart:
		return "start"
	case CallEnd:
		return "end"
	case CallReject:
		return "reject"
	case CallUndefined:
		return "undefined"
	default:
		return fmt.Sprintf("CallCommand(%d)", int(c))
	}
}

func (c CallCommand) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CallCommand) UnmarshalText(b []byte) error {
	for cmd := CallUndefined; cmd <= CallReject; cmd++ {
		if cmd.String() == string(b) {
			*c = cmd
			return nil
		}
	}
	return fmt.Errorf("unknown call command %q", b)
}

type CallSpec struct {
	Command     CallCommand `json:"command"`
	Name        string      `json:"name,omitempty"`
	SourceName  string      `json:"source_name,omitempty"`
	SourceAppID string      `json:"source_app_id,omitempty"`
}

type MusicSpec struct {
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	Track       string `json:"track,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"`
	TrackCount  int    `json:"track_count,omitempty"`
	TrackNr     int    `json:"track_nr,omitempty"`
}

type MusicState int

const (
	MusicStopped MusicState = iota
	MusicPlaying
	MusicPaused
)

func (s MusicState) String() string {
	switch s {
	case MusicPlaying:
		return "playing"
	case MusicPaused:
		return "paused"
	default:
		return "stopped"
	}
}

func (s MusicState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *MusicState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "playing":
		*s = MusicPlaying
	case "paused":
		*s = MusicPaused
	case "stopped", "":
		*s = MusicStopped
	default:
		return fmt.Errorf("unknown music state %q", b)
	}
	return nil
}

type MusicStateSpec struct {
	State       MusicState `json:"state"`
	PositionSec int        `json:"position_sec,omitempty"`
	PlayRate    int        `json:"play_rate,omitempty"`
	Shuffle     bool       `json:"shuffle,omitempty"`
	Repeat      bool       `json:"repeat,omitempty"`
}
