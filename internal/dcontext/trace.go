package dcontext

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// traceKey used to identify the context value previously installed by WithTrace.
type traceKey struct{}

// tracer maintains information about the current trace, for the purposes of
// identifying chains of calls (and their durations) from a context.
type tracer struct {
	id       string
	parentID string
	start    time.Time
	pc       uintptr
	file     string
	line     int
}

// WithTrace allows a function to trace execution through the application. It
// returns a context with a unique traceID and the parent trace's ID, if
// present. The returned function should be called when the task finishes,
// in a defer statement, to log the start and end times of the trace.
//
// Together, these provide a lightweight alternative to full-blown
// distributed tracing when all that is needed is call-chain timing across
// log lines.
func WithTrace(ctx context.Context) (context.Context, func(format string, a ...interface{})) {
	if ctx == nil {
		ctx = Background()
	}

	pc, file, line, _ := runtime.Caller(1)
	t := &tracer{
		id:    uuid.NewString(),
		start: time.Now(),
		pc:    pc,
		file:  file,
		line:  line,
	}

	if parent, ok := ctx.Value(traceKey{}).(*tracer); ok {
		t.parentID = parent.id
	}

	ctx = context.WithValue(ctx, traceKey{}, t)
	ctx = WithValues(ctx, map[any]any{
		"trace.id":    t.id,
		"trace.file":  t.file,
		"trace.line":  t.line,
		"trace.start": t.start,
		"trace.func":  runtime.FuncForPC(t.pc).Name(),
	})
	if t.parentID != "" {
		ctx = context.WithValue(ctx, "trace.parent.id", t.parentID)
	}

	f := runtime.FuncForPC(pc)

	return ctx, func(format string, a ...interface{}) {
		detail := fmt.Sprintf(format, a...)
		GetLogger(ctx, "trace.duration").
			WithField("trace.duration", time.Since(t.start)).
			Debugf("%s(%v) %s", f.Name(), t.id, detail)
	}
}
