package whisper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleJSON = `{
	"result": {"language": "en"},
	"transcription": [
		{"offsets": {"from": 0, "to": 4200}, "text": " Welcome to the lecture."},
		{"offsets": {"from": 4200, "to": 9100}, "text": "  Today we cover pipelines. "},
		{"offsets": {"from": 9100, "to": 9600}, "text": "   "}
	]
}`

func TestParseOutput(t *testing.T) {
	tr, err := parseOutput([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "en", tr.Language)
	require.Len(t, tr.Segments, 2, "blank segments are dropped")
	assert.Equal(t, 0.0, tr.Segments[0].Start)
	assert.Equal(t, 4.2, tr.Segments[0].End)
	assert.Equal(t, "Welcome to the lecture.", tr.Segments[0].Text)
	assert.Equal(t, 4.2, tr.Segments[1].Start)
	assert.Equal(t, "Welcome to the lecture. Today we cover pipelines.", tr.Text)
}

func newTestEngine(t *testing.T, run runFunc) *Engine {
	t.Helper()
	modelDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "ggml-base.bin"), []byte("model"), 0o644))

	e := NewEngine("whisper-cli", modelDir, t.TempDir(), time.Minute, zap.NewNop())
	e.run = run
	return e
}

// writeJSON emulates whisper-cli writing its -of output file.
func writeJSON(t *testing.T, args []string) {
	t.Helper()
	for i, a := range args {
		if a == "-of" {
			require.NoError(t, os.WriteFile(args[i+1]+".json", []byte(sampleJSON), 0o644))
			return
		}
	}
	t.Fatal("no -of argument")
}

func TestTranscribe(t *testing.T) {
	var gotArgs []string
	e := newTestEngine(t, func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		if args[0] == "--help" {
			return nil, nil, nil
		}
		gotArgs = args
		writeJSON(t, args)
		return nil, nil, nil
	})

	tr, err := e.Transcribe(context.Background(), "audio.wav", "base", "")
	require.NoError(t, err)
	assert.Equal(t, "en", tr.Language)
	assert.Len(t, tr.Segments, 2)

	assert.Contains(t, gotArgs, "--vad")
	assert.Contains(t, gotArgs, "--vad-min-silence-duration-ms")
	i := slices.Index(gotArgs, "-l")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "auto", gotArgs[i+1])
}

func TestTranscribeFallsBackToCPU(t *testing.T) {
	attempts := 0
	e := newTestEngine(t, func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		if args[0] == "--help" {
			return nil, nil, nil
		}
		attempts++
		if !slices.Contains(args, "-ng") {
			return nil, []byte("ggml_cuda_init: failed to initialize CUDA"), errors.New("exit status 1")
		}
		writeJSON(t, args)
		return nil, nil, nil
	})

	tr, err := e.Transcribe(context.Background(), "audio.wav", "base", "en")
	require.NoError(t, err, "device fallback must be transparent to the caller")
	assert.Equal(t, 2, attempts)
	assert.Len(t, tr.Segments, 2)
}

func TestTranscribeUnknownModel(t *testing.T) {
	e := newTestEngine(t, func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		return nil, nil, nil
	})

	_, err := e.Transcribe(context.Background(), "audio.wav", "gigantic", "")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestTranscribeModelFileMissing(t *testing.T) {
	e := newTestEngine(t, func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		return nil, nil, nil
	})

	_, err := e.Transcribe(context.Background(), "audio.wav", "medium", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download")
}

func TestModelPathCachedPerSize(t *testing.T) {
	e := newTestEngine(t, nil)

	a, err := e.modelPath("base")
	require.NoError(t, err)

	// Removing the file after first resolution must not invalidate the cache.
	require.NoError(t, os.Remove(a))
	b, err := e.modelPath("base")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAvailable(t *testing.T) {
	e := newTestEngine(t, func(_ context.Context, _ string, _ ...string) ([]byte, []byte, error) {
		return nil, nil, errors.New("not found")
	})
	assert.False(t, e.Available(context.Background()))
}
