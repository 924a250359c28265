package session

// PlaybackState is the lifecycle state of a session's playback.
type PlaybackState string

const (
	// StateIdle means no playback target has been set.
	StateIdle PlaybackState = "idle"
	// StateReady means a dataset is loaded and playback can start.
	StateReady PlaybackState = "ready"
	// StatePlaying means the pacer is emitting frames.
	StatePlaying PlaybackState = "playing"
	// StatePaused means the pacer exists but its gate is closed.
	StatePaused PlaybackState = "paused"
	// StateStopped means playback was stopped by command.
	StateStopped PlaybackState = "stopped"
	// StateCompleted means the pacer ran off the end of the dataset.
	StateCompleted PlaybackState = "completed"
)

func (s PlaybackState) String() string {
	return string(s)
}
