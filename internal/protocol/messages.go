package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies an inbound message after decoding.
type Kind string

const (
	KindAuth    Kind = "auth"
	KindControl Kind = "control"
	KindMessage Kind = "message"
	KindEvent   Kind = "event"
	KindCommand Kind = "command"
	KindPing    Kind = "ping"
	KindUnknown Kind = "unknown"
)

// Command is a playback control command carried by a KindControl message.
type Command string

const (
	CmdPlay      Command = "play"
	CmdPause     Command = "pause"
	CmdResume    Command = "resume"
	CmdStop      Command = "stop"
	CmdReplay    Command = "replay"
	CmdSetTarget Command = "set_target"
)

// CloseSuperseded is the websocket close code sent to a session evicted by a
// newer connection. Private-range code so clients can tell a deliberate
// supersession apart from abnormal closes.
const CloseSuperseded = 4001

// controlActions maps the wire action names onto commands.
var controlActions = map[string]Command{
	"play_video":     CmdPlay,
	"pause_video":    CmdPause,
	"resume_video":   CmdResume,
	"stop_video":     CmdStop,
	"replay_video":   CmdReplay,
	"set_video_path": CmdSetTarget,
}

// CommandForAction maps a wire action name onto its command, for callers
// arriving over HTTP instead of the websocket.
func CommandForAction(action string) (Command, bool) {
	cmd, ok := controlActions[action]
	return cmd, ok
}

// Inbound is a decoded client message.
type Inbound struct {
	Kind    Kind
	Command Command // set when Kind == KindControl

	Token     string // auth
	FPS       int    // control, 0 when absent
	VideoPath string // set_target

	Content     json.RawMessage // message
	Target      string          // message: "all" or a session id
	ExcludeSelf bool            // message broadcast

	EventName string          // event
	EventData json.RawMessage // event

	Name   string          // command
	Params json.RawMessage // command

	RawType    string // original type/action discriminant
	ReceivedAt time.Time
}

// envelope mirrors the union of fields clients may send. The discriminant is
// "type" for session messages and "action" for playback control.
type envelope struct {
	Type        string          `json:"type"`
	Action      string          `json:"action"`
	Token       string          `json:"token"`
	FPS         int             `json:"fps"`
	VideoPath   string          `json:"video_path"`
	ResultPath  string          `json:"result_path"`
	Content     json.RawMessage `json:"content"`
	Target      string          `json:"target"`
	ExcludeSelf bool            `json:"exclude_self"`
	EventName   string          `json:"event_name"`
	EventData   json.RawMessage `json:"event_data"`
	Command     string          `json:"command"`
	Params      json.RawMessage `json:"params"`
}

// Decode parses a raw client frame into an Inbound message. Unknown
// discriminants decode as KindUnknown rather than failing, so the pipeline
// can answer with a warning.
func Decode(data []byte, now time.Time) (*Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	in := &Inbound{ReceivedAt: now}

	if env.Action != "" {
		cmd, ok := controlActions[env.Action]
		if !ok {
			in.Kind = KindUnknown
			in.RawType = env.Action
			return in, nil
		}
		in.Kind = KindControl
		in.Command = cmd
		in.RawType = env.Action
		in.FPS = env.FPS
		in.VideoPath = env.VideoPath
		if in.VideoPath == "" {
			in.VideoPath = env.ResultPath
		}
		return in, nil
	}

	in.RawType = env.Type
	switch env.Type {
	case "auth":
		in.Kind = KindAuth
		in.Token = env.Token
	case "message":
		in.Kind = KindMessage
		in.Content = env.Content
		in.Target = env.Target
		in.ExcludeSelf = env.ExcludeSelf
	case "event":
		in.Kind = KindEvent
		in.EventName = env.EventName
		in.EventData = env.EventData
	case "command":
		in.Kind = KindCommand
		in.Name = env.Command
		in.Params = env.Params
	case "ping", "pong":
		in.Kind = KindPing
	default:
		in.Kind = KindUnknown
	}
	return in, nil
}

// --- Outbound messages ---

// Response is the generic command acknowledgment envelope.
type Response struct {
	Status  string         `json:"status"` // success, error, warning, info, received
	Message string         `json:"message"`
	Type    string         `json:"type,omitempty"`
	Code    string         `json:"code,omitempty"`
	Fields  map[string]any `json:"-"`
}

// MarshalJSON flattens Fields into the envelope, matching the wire format
// viewers expect ({"status":..., "message":..., <extra fields>}).
func (r Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["status"] = r.Status
	out["message"] = r.Message
	if r.Type != "" {
		out["type"] = r.Type
	}
	if r.Code != "" {
		out["code"] = r.Code
	}
	return json.Marshal(out)
}

// FrameData is a single emitted analysis frame.
type FrameData struct {
	Type        string    `json:"type"` // always "frame_data"
	FrameIndex  int       `json:"frame_index"`
	TotalFrames int       `json:"total_frames"`
	Channels    map[string]json.RawMessage
	Timestamp   time.Time `json:"timestamp"`
}

// MarshalJSON inlines the channel data so each channel appears as a
// top-level field next to frame_index/total_frames.
func (f FrameData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Channels)+4)
	for name, value := range f.Channels {
		out[name] = value
	}
	out["type"] = "frame_data"
	out["frame_index"] = f.FrameIndex
	out["total_frames"] = f.TotalFrames
	out["timestamp"] = f.Timestamp
	return json.Marshal(out)
}

// NewFrameData builds the frame push for index i.
func NewFrameData(index, total int, channels map[string]json.RawMessage, ts time.Time) FrameData {
	return FrameData{
		Type:        "frame_data",
		FrameIndex:  index,
		TotalFrames: total,
		Channels:    channels,
		Timestamp:   ts,
	}
}

// StatusChange announces a playback state transition.
type StatusChange struct {
	Type         string         `json:"type"` // always "status_change"
	Status       string         `json:"status"`
	CurrentFrame int            `json:"current_frame"`
	Timestamp    time.Time      `json:"timestamp"`
	Extra        map[string]any `json:"-"`
}

func (s StatusChange) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+4)
	for k, v := range s.Extra {
		out[k] = v
	}
	out["type"] = "status_change"
	out["status"] = s.Status
	out["current_frame"] = s.CurrentFrame
	out["timestamp"] = s.Timestamp
	return json.Marshal(out)
}

// NewStatusChange builds a status_change push.
func NewStatusChange(status string, currentFrame int, ts time.Time) StatusChange {
	return StatusChange{
		Type:         "status_change",
		Status:       status,
		CurrentFrame: currentFrame,
		Timestamp:    ts,
	}
}

// Ping is the heartbeat probe, Pong its reply.
type Ping struct {
	Type string    `json:"type"` // "ping"
	Time time.Time `json:"time"`
}

type Pong struct {
	Type string    `json:"type"` // "pong"
	Time time.Time `json:"time"`
}

func NewPing(ts time.Time) Ping { return Ping{Type: "ping", Time: ts} }
func NewPong(ts time.Time) Pong { return Pong{Type: "pong", Time: ts} }

// BroadcastMessage is the fan-out envelope delivered to every recipient.
type BroadcastMessage struct {
	Type      string          `json:"type"` // "broadcast"
	Content   json.RawMessage `json:"content"`
	Sender    string          `json:"sender"`
	Timestamp time.Time       `json:"timestamp"`
}

// PrivateMessage is the unicast envelope.
type PrivateMessage struct {
	Type      string          `json:"type"` // "private_message"
	Content   json.RawMessage `json:"content"`
	Sender    string          `json:"sender"`
	Timestamp time.Time       `json:"timestamp"`
}

// Welcome is sent once on connection establishment.
type Welcome struct {
	Type       string    `json:"type"` // "connection_established"
	ClientID   string    `json:"client_id"`
	ServerTime time.Time `json:"server_time"`
	Message    string    `json:"message"`
}

// ConnectionClosed is the best-effort notice sent before an eviction close.
type ConnectionClosed struct {
	Type       string    `json:"type"` // "connection_closed"
	Reason     string    `json:"reason"`
	ServerTime time.Time `json:"server_time"`
}

// AuthResult acknowledges an auth attempt.
type AuthResult struct {
	Status   string            `json:"status"` // success or error
	Type     string            `json:"type"`   // auth_success or auth_failed
	Message  string            `json:"message"`
	UserData map[string]string `json:"user_data,omitempty"`
}
