package pipeline

import (
	"bufio"
	"bytes"
	"os/exec"
	"path/filepath"
	"strings"
)

// OpenFileHandles invokes the OS's file-handle listing tool (lsof on Unix)
// and returns the set of absolute paths under folder currently held open by
// any process (spec §4.4.6). Failure to invoke the tool yields an empty set
// — fail-open for usability, per the design note in spec §9.
func OpenFileHandles(folder string) ([]string, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, nil
	}

	cmd := exec.Command("lsof", "+D", abs)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		// lsof exits non-zero when it finds nothing to report as often as
		// it does on a genuine failure to run; either way we fail open.
		if out.Len() == 0 {
			return nil, nil
		}
	}

	return parseLsofOutput(out.String(), abs), nil
}

// parseLsofOutput extracts the NAME column from `lsof +D <dir>` output.
// The header line starts with "COMMAND"; subsequent lines have the file
// path as their final whitespace-separated field.
func parseLsofOutput(output, folder string) []string {
	seen := make(map[string]struct{})
	var paths []string

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "COMMAND") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		path := fields[len(fields)-1]
		if !strings.HasPrefix(path, folder) {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	return paths
}
