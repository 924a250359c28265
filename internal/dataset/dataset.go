// Package dataset loads and caches the per-target analysis result files
// streamed during playback.
//
// A Dataset is read-only after Load: channels are aligned by frame index and
// truncated to the shortest channel present.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// requiredChannels are the analysis channels a result file must carry.
var requiredChannels = []string{"au_occurrence", "au_intensity", "valence_arousal"}

// auxChannels are included per frame when present in the result file.
var auxChannels = []string{"personality", "depression", "expression", "global_blendshape"}

// Dataset is an immutable, ordered sequence of analysis frames.
type Dataset struct {
	path     string
	channels map[string][]json.RawMessage
	length   int
}

// Load reads a result file and aligns its channels. The dataset length is
// the minimum length over every channel present; longer channels are
// truncated. An empty dataset is an error.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read result file %s: %w", path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse result file %s: %w", path, err)
	}
	ds.path = path
	return ds, nil
}

// Parse builds a Dataset from raw result JSON.
func Parse(data []byte) (*Dataset, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid result JSON: %w", err)
	}

	channels := make(map[string][]json.RawMessage)
	for _, name := range requiredChannels {
		blob, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("result file missing channel %q", name)
		}
		frames, err := decodeChannel(name, blob)
		if err != nil {
			return nil, err
		}
		channels[name] = frames
	}
	for _, name := range auxChannels {
		blob, ok := raw[name]
		if !ok {
			continue
		}
		frames, err := decodeChannel(name, blob)
		if err != nil {
			return nil, err
		}
		if len(frames) > 0 {
			channels[name] = frames
		}
	}

	length := -1
	for _, frames := range channels {
		if length < 0 || len(frames) < length {
			length = len(frames)
		}
	}
	if length <= 0 {
		return nil, fmt.Errorf("result data is empty")
	}

	// Truncate so every channel aligns by frame index.
	for name, frames := range channels {
		channels[name] = frames[:length]
	}

	return &Dataset{channels: channels, length: length}, nil
}

func decodeChannel(name string, blob json.RawMessage) ([]json.RawMessage, error) {
	var frames []json.RawMessage
	if err := json.Unmarshal(blob, &frames); err != nil {
		return nil, fmt.Errorf("channel %q is not an array: %w", name, err)
	}
	return frames, nil
}

// Len returns the number of aligned frames.
func (d *Dataset) Len() int {
	return d.length
}

// Path returns the file the dataset was loaded from, if any.
func (d *Dataset) Path() string {
	return d.path
}

// Frame returns the channel data for index i, one entry per channel.
func (d *Dataset) Frame(i int) map[string]json.RawMessage {
	if i < 0 || i >= d.length {
		return nil
	}
	out := make(map[string]json.RawMessage, len(d.channels))
	for name, frames := range d.channels {
		out[name] = frames[i]
	}
	return out
}

func readResultFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ResolveResultPath maps a playback target to its result file. A *.json
// target is used as-is; for a video path the result is looked up next to it
// (<base>.json, then result.json in the same directory).
func ResolveResultPath(target string) (string, error) {
	if strings.EqualFold(filepath.Ext(target), ".json") {
		if _, err := os.Stat(target); err != nil {
			return "", fmt.Errorf("result file not found: %s", target)
		}
		return target, nil
	}

	dir := filepath.Dir(target)
	base := strings.TrimSuffix(filepath.Base(target), filepath.Ext(target))
	candidates := []string{
		filepath.Join(dir, base+".json"),
		filepath.Join(dir, "result.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no result file found for target %s", target)
}
