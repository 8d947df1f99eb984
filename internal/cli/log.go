package cli

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates the run logger. Pipeline stages log through it at debug
// level, so -v shows cache decisions and stage timings.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// timer logs how long a CLI step took.
type timer struct {
	logger *log.Logger
	start  time.Time
}

func newTimer(l *log.Logger) *timer {
	return &timer{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Read 12 nodes and 4 regions (1.234s)".
func (t *timer) done(msg string) {
	t.logger.Infof("%s (%s)", msg, time.Since(t.start).Round(time.Millisecond))
}

// logStages logs the per-stage durations of a run at debug level, slowest
// stage first.
func logStages(l *log.Logger, stages map[string]float64) {
	names := make([]string, 0, len(stages))
	for name := range stages {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if stages[names[i]] != stages[names[j]] {
			return stages[names[i]] > stages[names[j]]
		}
		return names[i] < names[j]
	})
	kv := make([]any, 0, 2*len(names))
	for _, name := range names {
		kv = append(kv, name, time.Duration(stages[name]*float64(time.Second)).Round(time.Microsecond))
	}
	l.Debug("stage timings", kv...)
}

type ctxKey int

const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger attached to ctx, else log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if ctx == nil {
		return log.Default()
	}
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
