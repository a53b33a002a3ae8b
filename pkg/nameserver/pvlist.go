package nameserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Rule is one pvlist line.
type Rule struct {
	Pattern string
	Address string

	re *regexp.Regexp
}

// Match reports whether name is covered by the rule.
func (r Rule) Match(name string) bool {
	if r.re != nil {
		return r.re.MatchString(name)
	}
	return r.Pattern == name
}

// NewRule builds a rule, compiling pattern as an anchored regular
// expression when it contains metacharacters.
func NewRule(pattern, address string) (Rule, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return Rule{}, fmt.Errorf("invalid address %q: %w", address, err)
	}
	r := Rule{Pattern: pattern, Address: address}
	if regexp.QuoteMeta(pattern) != pattern {
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return Rule{}, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		r.re = re
	}
	return r, nil
}

// ParsePVList reads pvlist lines from r.
func ParsePVList(r io.Reader) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected <pattern> <host:port>, got %d fields", lineNo, len(fields))
		}
		rule, err := NewRule(fields[0], fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rules = append(rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// LoadPVList reads a pvlist file.
func LoadPVList(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePVList(f)
}

// WatchPVList calls onReload with the parsed file every time it changes
// until ctx is done. The parent directory is watched so that editors that
// replace the file are seen. A file that fails to parse is logged and the
// previous rules stay in effect.
func WatchPVList(ctx context.Context, path string, logger *slog.Logger, onReload func([]Rule)) error {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()

		const debounce = 100 * time.Millisecond
		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				timerC = timer.C

			case <-timerC:
				timerC = nil
				rules, err := LoadPVList(abs)
				if err != nil {
					logger.Warn("pvlist reload failed", "path", abs, "error", err)
					continue
				}
				logger.Info("pvlist reloaded", "path", abs, "rules", len(rules))
				onReload(rules)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("pvlist watcher error", "error", err)
			}
		}
	}()
	return nil
}
