package tesseract

import (
	"context"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Two lines: "Hello world" on line 1, "indented" on line 2, plus the
// non-word structural rows tesseract always emits (conf -1).
const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t640\t480\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t10\t12\t200\t24\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t12\t90\t24\t96.5\tHello\n" +
	"5\t1\t1\t1\t1\t2\t110\t12\t100\t24\t91.5\tworld\n" +
	"5\t1\t1\t1\t2\t1\t60\t50\t120\t22\t88.0\tindented\n"

func TestParseTSVGroupsWordsIntoLines(t *testing.T) {
	blocks := parseTSV(sampleTSV)
	require.Len(t, blocks, 2)

	assert.Equal(t, "Hello world", blocks[0].Text)
	assert.Equal(t, 10.0, blocks[0].Box[0].X)
	assert.Equal(t, 12.0, blocks[0].Box[0].Y)
	assert.Equal(t, 210.0, blocks[0].Box[1].X)
	assert.Equal(t, 36.0, blocks[0].Box[2].Y)
	assert.InDelta(t, 0.94, blocks[0].Confidence, 0.001)

	assert.Equal(t, "indented", blocks[1].Text)
	assert.Equal(t, 60.0, blocks[1].Box[0].X)
	assert.Equal(t, 50.0, blocks[1].Box[0].Y)
	assert.InDelta(t, 0.88, blocks[1].Confidence, 0.001)
}

func TestParseTSVNoText(t *testing.T) {
	blocks := parseTSV("level\tpage_num\n1\t1\n")
	assert.Empty(t, blocks)
}

func TestRecognizeFileReturnsEmptyNotError(t *testing.T) {
	e := NewEngine("tesseract", "eng", time.Minute, zap.NewNop())
	e.run = func(_ context.Context, _ io.Reader, _ string, args ...string) ([]byte, []byte, error) {
		if args[0] == "--version" {
			return []byte("tesseract 5.3.0"), nil, nil
		}
		header := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n"
		return []byte(header), nil, nil
	}

	blocks, err := e.RecognizeFile(context.Background(), "blank.jpg")
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestRecognizeEncodesImageToStdin(t *testing.T) {
	var stdinLen int
	e := NewEngine("tesseract", "eng", time.Minute, zap.NewNop())
	e.run = func(_ context.Context, stdin io.Reader, _ string, args ...string) ([]byte, []byte, error) {
		if args[0] == "--version" {
			return []byte("tesseract 5.3.0"), nil, nil
		}
		require.Equal(t, "stdin", args[0])
		data, err := io.ReadAll(stdin)
		require.NoError(t, err)
		stdinLen = len(data)
		return []byte(sampleTSV), nil, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	blocks, err := e.Recognize(context.Background(), img)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
	assert.Greater(t, stdinLen, 0, "image bytes must reach the engine")
}

func TestAvailableProbesWithoutRaising(t *testing.T) {
	e := NewEngine("tesseract", "eng", time.Minute, zap.NewNop())
	e.run = func(_ context.Context, _ io.Reader, _ string, _ ...string) ([]byte, []byte, error) {
		return nil, nil, errors.New("executable file not found in $PATH")
	}

	assert.False(t, e.Available(context.Background()))

	_, err := e.RecognizeFile(context.Background(), "x.png")
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestInitProbeRunsOnce(t *testing.T) {
	calls := 0
	e := NewEngine("tesseract", "eng", time.Minute, zap.NewNop())
	e.run = func(_ context.Context, _ io.Reader, _ string, args ...string) ([]byte, []byte, error) {
		if args[0] == "--version" {
			calls++
		}
		return []byte(sampleTSV), nil, nil
	}

	ctx := context.Background()
	assert.True(t, e.Available(ctx))
	_, _ = e.RecognizeFile(ctx, "a.png")
	_, _ = e.RecognizeFile(ctx, "b.png")
	assert.Equal(t, 1, calls)
}
