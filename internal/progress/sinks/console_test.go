package sinks

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConsoleSinkRendersRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	require.NoError(t, sink.Consume(context.Background(), sampleRun()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, []string{
		"run " + testRunID.String() + ": 3 of 5 entities outstanding",
		"[batch 1/1] 3 entities",
		"  retry B (attempt 1): navigation timeout",
		"✓ A: https://a.example",
		"✗ B: navigation timeout",
		"✗ 3: no website",
		"checkpoint: 3 resolved (+1)",
		"done: 1 resolved this run, 3 resolved in total (1m0s)",
	}, lines)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestConsoleSinkWriteError(t *testing.T) {
	t.Parallel()

	sink := NewConsoleSink(failingWriter{})
	err := sink.Consume(context.Background(), sampleRun()[:1])
	require.ErrorContains(t, err, "console sink write")
}
