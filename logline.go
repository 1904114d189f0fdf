package boxmgr

import (
	"fmt"
	"time"
)

// Source identifies where a console line came from
type Source uint8

const (
	// SourceInternal marks lines produced by the supervisor itself
	SourceInternal Source = iota
	// SourceStdout marks lines read from the core's standard output
	SourceStdout
	// SourceStderr marks lines read from the core's standard error
	SourceStderr
)

// String returns the string representation of a Source
func (s Source) String() string {
	switch s {
	case SourceStdout:
		return "stdout"
	case SourceStderr:
		return "stderr"
	default:
		return "internal"
	}
}

// LogLine is one console line kept in the log queue
type LogLine struct {
	Time   time.Time
	Source Source
	Text   string
}

// String renders the line the way log subscribers receive it.
// Internal lines carry no source label.
func (l LogLine) String() string {
	if l.Source == SourceInternal {
		return fmt.Sprintf("[%s] %s", l.Time.Format(LogTimeLayout), l.Text)
	}
	return fmt.Sprintf("[%s] %s: %s", l.Time.Format(LogTimeLayout), l.Source, l.Text)
}

func newLogLine(source Source, text string) LogLine {
	return LogLine{Time: time.Now(), Source: source, Text: text}
}
