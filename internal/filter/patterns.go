package filter

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Patterns is an ordered list of compiled ignore patterns.
type Patterns []*regexp.Regexp

// Match reports whether any pattern is found in subject.
func (p Patterns) Match(subject string) bool {
	for _, re := range p {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}

// Strings returns the source text of each pattern.
func (p Patterns) Strings() []string {
	out := make([]string, len(p))
	for i, re := range p {
		out[i] = re.String()
	}
	return out
}

// CompilePatterns compiles each expression in order. Invalid expressions are
// left out and reported in the returned errors.
func CompilePatterns(exprs []string) (Patterns, []error) {
	var (
		out  Patterns
		errs []error
	)
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid ignore pattern %q: %w", expr, err))
			continue
		}
		out = append(out, re)
	}
	return out, errs
}

// ParsePatternLines reads one pattern per line, trimming whitespace and
// skipping blank lines and lines starting with '#'.
func ParsePatternLines(r io.Reader) ([]string, error) {
	var exprs []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		exprs = append(exprs, line)
	}
	return exprs, sc.Err()
}

// LoadPatterns reads and compiles the ignore file at path. A missing or
// unreadable file yields no patterns; bad expressions are logged and skipped.
func LoadPatterns(path string, logger *slog.Logger) Patterns {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to open ignore patterns", "path", path, "error", err)
		}
		return nil
	}
	defer f.Close()

	exprs, err := ParsePatternLines(f)
	if err != nil {
		logger.Warn("failed to read ignore patterns", "path", path, "error", err)
		return nil
	}

	patterns, errs := CompilePatterns(exprs)
	for _, e := range errs {
		logger.Warn("skipping ignore pattern", "error", e)
	}
	logger.Info("loaded ignore patterns", "path", path, "count", len(patterns))
	for _, p := range patterns {
		logger.Debug("ignore pattern", "pattern", p.String())
	}
	return patterns
}
