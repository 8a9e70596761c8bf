package cli

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// expandInputs resolves arguments to regular files. Patterns such as "*.ts"
// are expanded here when the shell did not do it. Arguments that match
// nothing are returned in missing.
func expandInputs(args []string) (files, missing []string) {
	seen := make(map[string]bool)
	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if !seen[abs] {
			seen[abs] = true
			files = append(files, p)
		}
	}

	for _, arg := range args {
		if fi, err := os.Stat(arg); err == nil {
			if fi.Mode().IsRegular() {
				add(arg)
			} else {
				missing = append(missing, arg)
			}
			continue
		}
		if !strings.ContainsAny(arg, "*?[") {
			missing = append(missing, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			missing = append(missing, arg)
			continue
		}
		sort.Strings(matches)
		n := 0
		for _, m := range matches {
			if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
				add(m)
				n++
			}
		}
		if n == 0 {
			missing = append(missing, arg)
		}
	}
	return files, missing
}
