package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f and restarts it in a fresh goroutine after a
// panic. A negative maxPanics restarts without limit; reaching zero is
// fatal.
func GoRecoverable(maxPanics int, id string, f func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log.Errorf("job %q panicked at %s: %v", id, identifyPanic(), r)
		if maxPanics == 0 {
			log.Fatalf("job %q exceeded its panic limit, exiting", id)
		}
		if maxPanics > 0 {
			maxPanics--
		}
		log.Debugf("restarting job %q, panics left: %d", id, maxPanics)
		go GoRecoverable(maxPanics, id, f)
	}()
	f()
}

func identifyPanic() string {
	pc := make([]uintptr, 16)
	n := runtime.Callers(3, pc)
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", frame.Function, frame.Line)
		}
		if !more {
			break
		}
	}
	return "unknown"
}
