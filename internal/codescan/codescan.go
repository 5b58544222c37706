// Package codescan flags risky constructs in generated plugin code.
//
// The scan is advisory. It looks for dynamic evaluation and process
// spawning calls and runs the gitleaks rule set to catch credentials the
// model may have inlined.
package codescan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Finding kinds.
const (
	KindDangerousCall = "dangerous_call"
	KindSecret        = "secret"
)

// Finding is one scan hit. Secret values are never included.
type Finding struct {
	Kind    string `json:"kind"`
	Rule    string `json:"rule"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// String renders the finding for warnings.
func (f Finding) String() string {
	return fmt.Sprintf("line %d: %s", f.Line, f.Message)
}

// Report is the result of a scan.
type Report struct {
	Findings []Finding `json:"findings"`

	// Err is set when secret detection could not run.
	Err error `json:"-"`
}

// Clean reports whether the scan found nothing.
func (r Report) Clean() bool { return len(r.Findings) == 0 }

// Messages returns one line per finding.
func (r Report) Messages() []string {
	out := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		out = append(out, f.String())
	}
	return out
}

type callRule struct {
	id      string
	pattern *regexp.Regexp
}

var dangerousCalls = []callRule{
	{"eval", regexp.MustCompile(`(?i)eval\s*\(`)},
	{"exec", regexp.MustCompile(`(?i)exec\s*\(`)},
	{"dynamic-import", regexp.MustCompile(`(?i)__import__\s*\(`)},
	{"subprocess", regexp.MustCompile(`(?i)subprocess\.`)},
	{"os-system", regexp.MustCompile(`(?i)os\.system\s*\(`)},
	{"os-popen", regexp.MustCompile(`(?i)os\.popen\s*\(`)},
	{"os-spawn", regexp.MustCompile(`(?i)os\.spawn`)},
	{"os-exec", regexp.MustCompile(`(?i)os\.exec`)},
}

// Scanner scans source code.
type Scanner struct {
	secrets bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithoutSecrets disables gitleaks detection.
func WithoutSecrets() Option {
	return func(s *Scanner) { s.secrets = false }
}

// New creates a Scanner with secret detection enabled.
func New(opts ...Option) *Scanner {
	s := &Scanner{secrets: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan checks code and returns all findings ordered by line.
func (s *Scanner) Scan(code string) Report {
	var r Report

	for i, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, rule := range dangerousCalls {
			if rule.pattern.MatchString(line) {
				r.Findings = append(r.Findings, Finding{
					Kind:    KindDangerousCall,
					Rule:    rule.id,
					Line:    i + 1,
					Message: fmt.Sprintf("dangerous call %q", strings.TrimSpace(rule.pattern.FindString(line))),
				})
			}
		}
	}

	if s.secrets {
		findings, err := detectSecrets(code)
		if err != nil {
			r.Err = err
		}
		r.Findings = append(r.Findings, findings...)
	}

	sortByLine(r.Findings)
	return r
}

func detectSecrets(code string) ([]Finding, error) {
	// The detector accumulates findings across calls, so each scan gets its own.
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading secret rules: %w", err)
	}

	hits := detector.DetectString(code)
	out := make([]Finding, 0, len(hits))
	for _, h := range hits {
		out = append(out, Finding{
			Kind:    KindSecret,
			Rule:    h.RuleID,
			Line:    h.StartLine,
			Message: "possible secret: " + h.Description,
		})
	}
	return out, nil
}

func sortByLine(fs []Finding) {
	for i := 1; i < len(fs); i++ {
		for j := i; j > 0 && fs[j].Line < fs[j-1].Line; j-- {
			fs[j], fs[j-1] = fs[j-1], fs[j]
		}
	}
}
