// ABOUTME: Structured logging wrapper carrying room_id/client_id through context.Context
// ABOUTME: Narrows the teacher pack's zerolog request/correlation-id pattern to beatsync's fields
package logging

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type ctxKey int

const (
	roomIDKey ctxKey = iota
	clientIDKey
)

// New builds the process-wide base logger. debug lowers the level to Debug;
// otherwise Info is the default, matching the teacher pack's convention.
func New(w io.Writer, debug bool) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// WithRoom returns a context carrying roomId for every log line emitted
// downstream via L(ctx).
func WithRoom(ctx context.Context, roomID string) context.Context {
	return context.WithValue(ctx, roomIDKey, roomID)
}

// WithClient returns a context carrying clientId for every log line emitted
// downstream via L(ctx).
func WithClient(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// L returns a logger derived from base, tagged with whatever room/client ids
// are present in ctx.
func L(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	l := base
	if roomID, ok := ctx.Value(roomIDKey).(string); ok && roomID != "" {
		l = l.With().Str("room_id", roomID).Logger()
	}
	if clientID, ok := ctx.Value(clientIDKey).(string); ok && clientID != "" {
		l = l.With().Str("client_id", clientID).Logger()
	}
	return l
}
