//go:build linux || darwin

package boxmgr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/renameio/v2"
	"github.com/stretchr/testify/require"
)

const fakeCoreVersion = "1.9.0-test"

// fakeCoreOptions shape the behaviour of a fake core binary
type fakeCoreOptions struct {
	// IgnoreTerm makes the core ignore SIGTERM so it has to be killed
	IgnoreTerm bool
	// NoReady suppresses the readiness line
	NoReady bool
	// ReadyTwice prints the readiness line twice
	ReadyTwice bool
	// ExitCode makes the core exit on its own after startup
	ExitCode int
	// BadVersion makes the version query fail
	BadVersion bool
	// LongLine prints a line of that many bytes before the readiness line
	LongLine int
	// TermOutput is printed to stdout when the core handles SIGTERM
	TermOutput string
}

// fakeCore is a shell script standing in for the core binary
type fakeCore struct {
	Path      string
	ConfigOut string
	ArgsOut   string
	SideFile  string
}

func writeFakeCore(t *testing.T, dir string, opts fakeCoreOptions) *fakeCore {
	t.Helper()

	fc := &fakeCore{
		Path:      filepath.Join(dir, "sing-box"),
		ConfigOut: filepath.Join(dir, "received.json"),
		ArgsOut:   filepath.Join(dir, "args.txt"),
		SideFile:  filepath.Join(dir, "side.txt"),
	}
	require.NoError(t, renameio.WriteFile(fc.Path, []byte(fakeCoreScript(fc, opts)), 0o755))
	return fc
}

func fakeCoreScript(fc *fakeCore, opts fakeCoreOptions) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("if [ \"$1\" = \"version\" ]; then\n")
	if opts.BadVersion {
		b.WriteString("  echo 'usage: something else'\n  exit 2\n")
	} else {
		fmt.Fprintf(&b, "  echo '%s %s'\n", VersionPrefix, fakeCoreVersion)
		b.WriteString("  echo ''\n  echo 'Environment: go1.22 linux/amd64'\n")
		b.WriteString("  echo 'Tags: with_gvisor,with_clash_api'\n  exit 0\n")
	}
	b.WriteString("fi\n")
	if opts.IgnoreTerm {
		b.WriteString("trap '' TERM\n")
	} else {
		fmt.Fprintf(&b, "trap \"%secho term >> '%s'; exit 0\" TERM\n", termEcho(opts.TermOutput), fc.SideFile)
	}
	fmt.Fprintf(&b, "echo \"$@\" > '%s'\n", fc.ArgsOut)
	fmt.Fprintf(&b, "cat > '%s'\n", fc.ConfigOut)
	fmt.Fprintf(&b, "echo core >> '%s'\n", fc.SideFile)
	b.WriteString("echo 'WARN some warning' >&2\n")
	if opts.LongLine > 0 {
		fmt.Fprintf(&b, "head -c %d /dev/zero | tr '\\0' x\n", opts.LongLine)
		b.WriteString("echo\necho 'after long line'\n")
	}
	if !opts.NoReady {
		fmt.Fprintf(&b, "echo 'INFO[0000] %s (0.01s)'\n", ReadyMarker)
		if opts.ReadyTwice {
			fmt.Fprintf(&b, "echo 'INFO[0001] %s (0.02s)'\n", ReadyMarker)
		}
	}
	if opts.ExitCode != 0 {
		fmt.Fprintf(&b, "exit %d\n", opts.ExitCode)
	}
	b.WriteString("while :; do sleep 0.05; done\n")
	return b.String()
}

func termEcho(text string) string {
	if text == "" {
		return ""
	}
	return fmt.Sprintf("echo '%s'; ", text)
}

// sideLines returns the lines appended to the side file so far
func (fc *fakeCore) sideLines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(fc.SideFile)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Fields(string(data))
}

// appendScript is a hook script appending word to the side file
func (fc *fakeCore) appendScript(word string) string {
	return fmt.Sprintf("#!/bin/sh\necho %s >> '%s'\n", word, fc.SideFile)
}
