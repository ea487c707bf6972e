package collector

import (
	"runtime"
	"strings"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

// captureTrace walks the caller's stack and keeps up to max application
// frames. Runtime frames, this package's own frames, and driver internals
// are skipped so the trace starts at the statement's real call site.
func captureTrace(skip, max int) []models.StackFrame {
	if max <= 0 {
		max = DefaultTraceDepth
	}
	pcs := make([]uintptr, max+8)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	var out []models.StackFrame
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !skipFrame(frame.Function) {
			out = append(out, models.StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
			if len(out) >= max {
				break
			}
		}
		if !more {
			break
		}
	}
	return out
}

func skipFrame(function string) bool {
	if strings.HasPrefix(function, "runtime.") {
		return true
	}
	if strings.Contains(function, "/pkg/collector.") {
		return true
	}
	return strings.Contains(function, "github.com/jackc/pgx")
}
