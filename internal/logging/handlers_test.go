package logging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_AddsDynamicAttrs(t *testing.T) {
	var buf bytes.Buffer
	seq := 0
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		seq++
		return []slog.Attr{slog.Int("seq", seq)}
	})
	logger := slog.New(h).With("site", "Jharia").WithGroup("g")

	logger.Info("one")
	logger.Info("two", "k", "v")

	out := buf.String()
	assert.Contains(t, out, "site=Jharia")
	assert.Contains(t, out, "g.seq=1")
	assert.Contains(t, out, "g.seq=2")
	assert.Contains(t, out, "g.k=v")
}

func TestContextHandler_NilProviderAndEnabled(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}), nil)

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.Same(t, h, h.WithGroup(""))

	slog.New(h).Warn("careful")
	assert.Contains(t, buf.String(), "careful")
}

type failingHandler struct {
	slog.Handler
	err error
}

func (f failingHandler) Handle(context.Context, slog.Record) error { return f.err }

func TestMultiHandler_FansOutAndJoinsErrors(t *testing.T) {
	var info, warn bytes.Buffer
	boom := errors.New("graylog down")
	h := NewMultiHandler(
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		nil,
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
		failingHandler{Handler: slog.NewTextHandler(io.Discard, nil), err: boom},
	)
	require.Len(t, h.handlers, 3)
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("site", "Korba")}))
	logger.Info("tick")
	logger.Warn("hazard")

	assert.Contains(t, info.String(), "msg=tick site=Korba")
	assert.Contains(t, info.String(), "msg=hazard")
	assert.NotContains(t, warn.String(), "tick")
	assert.Contains(t, warn.String(), "msg=hazard site=Korba")

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "direct", 0))
	assert.ErrorIs(t, err, boom)
	assert.Same(t, h, h.WithGroup(""))
}
