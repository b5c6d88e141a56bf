package sinks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), sampleRun()))

	entries := logs.All()
	require.Len(t, entries, len(sampleRun()))
	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 2)
	require.Equal(t, "B", warns[0].ContextMap()["name"])

	found := logs.FilterField(zap.String("url", "https://a.example")).All()
	require.Len(t, found, 1)
	require.Equal(t, "found", found[0].ContextMap()["outcome"])
}
