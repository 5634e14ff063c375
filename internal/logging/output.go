package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	outputMu sync.Mutex
	stdout   io.Writer = os.Stdout
	stderr   io.Writer = os.Stderr
)

// SetOutput redirects log output. ERROR lines go to errOut, everything else
// to out. It returns a function restoring the previous writers.
func SetOutput(out, errOut io.Writer) (restore func()) {
	outputMu.Lock()
	prevOut, prevErr := stdout, stderr
	stdout, stderr = out, errOut
	outputMu.Unlock()

	return func() {
		outputMu.Lock()
		stdout, stderr = prevOut, prevErr
		outputMu.Unlock()
	}
}

// writeLog formats one line: "[ts] [LEVEL] name: msg | k=v k=v".
// Fields are sorted by key so lines are stable.
func (l *Logger) writeLog(level LogLevel, msg string, fields map[string]interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s: %s", GetTimestamp(), level, l.name, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	b.WriteByte('\n')

	outputMu.Lock()
	defer outputMu.Unlock()
	if level >= ERROR {
		_, _ = io.WriteString(stderr, b.String())
	} else {
		_, _ = io.WriteString(stdout, b.String())
	}
}

func (l *Logger) logf(level LogLevel, msg string, args ...interface{}) {
	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}
	l.writeLog(level, formatted, l.mergeFields(nil))
}

// GetTimestamp returns the current time in RFC3339, or LOG_TIMESTAMP if set.
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}
