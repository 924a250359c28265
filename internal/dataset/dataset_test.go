package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResult = `{
	"au_occurrence":  [[1,0],[0,1],[1,1],[0,0]],
	"au_intensity":   [[0.5,0.1],[0.2,0.9],[0.7,0.3],[0.4,0.4]],
	"valence_arousal":[[0.1,-0.2],[0.3,0.0],[-0.1,0.5]],
	"expression":     ["neutral","happy","sad","angry","surprised"]
}`

func writeResult(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseAlignsChannelsToShortest(t *testing.T) {
	ds, err := Parse([]byte(sampleResult))
	require.NoError(t, err)

	// valence_arousal has 3 entries; everything truncates to that.
	assert.Equal(t, 3, ds.Len())

	frame := ds.Frame(2)
	require.NotNil(t, frame)
	assert.JSONEq(t, `[1,1]`, string(frame["au_occurrence"]))
	assert.JSONEq(t, `[-0.1,0.5]`, string(frame["valence_arousal"]))
	assert.JSONEq(t, `"sad"`, string(frame["expression"]))
}

func TestParseRejectsMissingChannel(t *testing.T) {
	_, err := Parse([]byte(`{"au_occurrence":[[1]],"au_intensity":[[0.1]]}`))
	assert.ErrorContains(t, err, "valence_arousal")
}

func TestParseRejectsEmptyData(t *testing.T) {
	_, err := Parse([]byte(`{"au_occurrence":[],"au_intensity":[[0.1]],"valence_arousal":[[0,0]]}`))
	assert.ErrorContains(t, err, "empty")
}

func TestParseRejectsNonArrayChannel(t *testing.T) {
	_, err := Parse([]byte(`{"au_occurrence":"nope","au_intensity":[[0.1]],"valence_arousal":[[0,0]]}`))
	assert.Error(t, err)
}

func TestFrameOutOfRange(t *testing.T) {
	ds, err := Parse([]byte(sampleResult))
	require.NoError(t, err)

	assert.Nil(t, ds.Frame(-1))
	assert.Nil(t, ds.Frame(ds.Len()))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeResult(t, dir, "result.json", sampleResult)

	ds, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, path, ds.Path())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestResolveResultPath(t *testing.T) {
	dir := t.TempDir()

	t.Run("json target used directly", func(t *testing.T) {
		path := writeResult(t, dir, "direct.json", sampleResult)
		got, err := ResolveResultPath(path)
		require.NoError(t, err)
		assert.Equal(t, path, got)
	})

	t.Run("video target resolves sibling json", func(t *testing.T) {
		sibling := writeResult(t, dir, "person.json", sampleResult)
		got, err := ResolveResultPath(filepath.Join(dir, "person.mp4"))
		require.NoError(t, err)
		assert.Equal(t, sibling, got)
	})

	t.Run("video target falls back to result.json", func(t *testing.T) {
		sub := filepath.Join(dir, "fallback")
		require.NoError(t, os.Mkdir(sub, 0o755))
		fallback := writeResult(t, sub, "result.json", sampleResult)
		got, err := ResolveResultPath(filepath.Join(sub, "other.mp4"))
		require.NoError(t, err)
		assert.Equal(t, fallback, got)
	})

	t.Run("nothing found", func(t *testing.T) {
		_, err := ResolveResultPath(filepath.Join(dir, "missing", "clip.mp4"))
		assert.Error(t, err)
	})
}
