package compiler

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// problemPattern extracts a Diagnostic from one line of build output.
// Group indexes are 1-based; zero means the pattern has no such group.
type problemPattern struct {
	name    string
	regexp  *regexp.Regexp
	file    int
	line    int
	column  int
	message int
	// code is prepended to the message when present (e.g. TS2322).
	code int
}

// Order matters: the first matching pattern wins.
var problemPatterns = []problemPattern{
	{
		name:    "tsc",
		regexp:  regexp.MustCompile(`^(.+)\((\d+),(\d+)\):\s*(?:error|warning)\s+(\w+):\s*(.+)$`),
		file:    1,
		line:    2,
		column:  3,
		code:    4,
		message: 5,
	},
	{
		name:    "file-line-column",
		regexp:  regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*(.+)$`),
		file:    1,
		line:    2,
		column:  3,
		message: 4,
	},
	{
		name:    "file-line",
		regexp:  regexp.MustCompile(`^(.+?):(\d+):\s*(.+)$`),
		file:    1,
		line:    2,
		message: 3,
	},
}

func (p problemPattern) match(line string) (Diagnostic, bool) {
	m := p.regexp.FindStringSubmatch(line)
	if m == nil {
		return Diagnostic{}, false
	}

	d := Diagnostic{
		File:    strings.TrimSpace(group(m, p.file)),
		Line:    atoi(group(m, p.line)),
		Column:  atoi(group(m, p.column)),
		Message: strings.TrimSpace(group(m, p.message)),
	}
	if code := group(m, p.code); code != "" {
		d.Message = code + ": " + d.Message
	}
	if d.File == "" || d.Message == "" {
		return Diagnostic{}, false
	}
	return d, true
}

func group(m []string, i int) string {
	if i <= 0 || i >= len(m) {
		return ""
	}
	return m[i]
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// ParseDiagnostics extracts diagnostics from build output. When no line
// matches a known pattern but the output is not blank, the whole trimmed
// output becomes a single message-only diagnostic. The same message-only
// diagnostic is appended when a line is too long to scan, so nothing after
// it is lost.
func ParseDiagnostics(output string) []Diagnostic {
	var diags []Diagnostic

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, p := range problemPatterns {
			if d, ok := p.match(line); ok {
				diags = append(diags, d)
				break
			}
		}
	}

	if len(diags) == 0 || scanner.Err() != nil {
		if msg := strings.TrimSpace(output); msg != "" {
			diags = append(diags, Diagnostic{Message: msg})
		}
	}
	return diags
}
