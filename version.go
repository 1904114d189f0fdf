package boxmgr

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// Version is the current version of the go-boxmgr library
const Version = "1.0.0"

// CoreInfo contains what a core binary reports about itself
type CoreInfo struct {
	// Version is the core's version string, empty when not reported
	Version string
	// Tags are the build tags the core was compiled with
	Tags []string
}

// QueryCore runs the binary at path with the "version" argument and parses
// its output. An error is returned only when the binary cannot be run; a
// binary that runs but prints no version line yields an empty CoreInfo.
func QueryCore(ctx context.Context, path string) (CoreInfo, error) {
	cmd := exec.CommandContext(ctx, path, "version")
	out, err := cmd.Output()
	if err != nil && cmd.ProcessState == nil {
		return CoreInfo{}, &OpError{Op: OpVersion, Path: path, Err: err}
	}
	info, _ := parseCoreInfo(out)
	return info, nil
}

// parseCoreInfo reads the "sing-box version X" and "Tags: a,b" lines.
// It reports whether a version line was found.
func parseCoreInfo(out []byte) (CoreInfo, bool) {
	var info CoreInfo
	found := false

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, VersionPrefix):
			info.Version = strings.TrimSpace(strings.TrimPrefix(line, VersionPrefix))
			found = true
		case strings.HasPrefix(line, TagsPrefix):
			for _, tag := range strings.Split(strings.TrimPrefix(line, TagsPrefix), ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					info.Tags = append(info.Tags, tag)
				}
			}
		}
	}
	return info, found
}
