package clean

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// defaultStaleAge is used when --stale is given without a duration.
const defaultStaleAge = 7 * 24 * time.Hour

// trackedDirs are the buck-out subtrees the artifact state tracks. Untracked
// entries appear from aborted actions, state-format changes, or tools writing
// into buck-out directly.
var trackedDirs = []string{"gen", "tmp", "cache"}

// ParseStaleArgs derives the keep-since cutoff from the --stale and
// --keep-since-time flags. Both absent means a full clean (nil cutoff).
// staleValue is meaningful only when staleSet: empty means the default age.
func ParseStaleArgs(staleSet bool, staleValue string, keepSinceTime *int64, now time.Time) (*time.Time, error) {
	if keepSinceTime != nil {
		if staleSet {
			return nil, fmt.Errorf("--keep-since-time and --stale cannot be combined")
		}
		t := time.Unix(*keepSinceTime, 0)
		return &t, nil
	}
	if !staleSet {
		return nil, nil
	}
	age := defaultStaleAge
	if staleValue != "" {
		parsed, err := ParseDuration(staleValue)
		if err != nil {
			return nil, fmt.Errorf("invalid --stale duration %q: %w", staleValue, err)
		}
		age = parsed
	}
	cutoff := now.Add(-age)
	return &cutoff, nil
}

// ParseDuration accepts Go duration syntax extended with day ("d") and week
// ("w") units, e.g. "1w", "3d", "12h", "1w3d".
func ParseDuration(s string) (time.Duration, error) {
	rest := s
	var total time.Duration
	for rest != "" {
		i := 0
		for i < len(rest) && (rest[i] >= '0' && rest[i] <= '9' || rest[i] == '.') {
			i++
		}
		if i == 0 || i == len(rest) {
			// No leading number or trailing unit; let the standard parser
			// produce the error message.
			return time.ParseDuration(s)
		}
		j := i
		for j < len(rest) && !(rest[j] >= '0' && rest[j] <= '9') {
			j++
		}
		num, unit := rest[:i], rest[i:j]
		switch unit {
		case "d", "w":
			n, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			day := float64(24 * time.Hour)
			if unit == "w" {
				total += time.Duration(n * day * 7)
			} else {
				total += time.Duration(n * day)
			}
		default:
			d, err := time.ParseDuration(num + unit)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q", s)
			}
			total += d
		}
		rest = rest[j:]
	}
	if total == 0 && !strings.ContainsAny(s, "0") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return total, nil
}

// cleanStale deletes buck-out entries last modified before keepSince. The
// daemon keeps running.
func cleanStale(ctx context.Context, buckOut string, keepSince time.Time, trackedOnly, dryRun bool, stderr io.Writer, logger *zap.Logger) error {
	roots := []string{buckOut}
	if trackedOnly {
		roots = roots[:0]
		for _, d := range trackedDirs {
			roots = append(roots, filepath.Join(buckOut, d))
		}
	}

	var removed, kept int64
	for _, root := range roots {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if !info.ModTime().Before(keepSince) {
				kept++
				return nil
			}
			removed++
			fmt.Fprintln(stderr, path)
			if dryRun {
				return nil
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s: %w", path, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	logger.Info("stale clean finished",
		zap.Int64("removed", removed),
		zap.Int64("kept", kept),
		zap.Bool("dry_run", dryRun))
	return nil
}
