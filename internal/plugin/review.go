package plugin

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// FixByReasonPrefix prefixes the suggestion derived from a bare reason.
	FixByReasonPrefix = "请根据以下理由修复问题："

	reviewFailedReasonPrefix = "代码审查失败："
	reviewFailedIssue        = "代码审查失败"
	reviewFailedSuggestion   = "请检查代码并重试"
)

// ReviewResult is a normalized code review.
type ReviewResult struct {
	Approved          bool     `json:"approved"`
	SatisfactionScore int      `json:"satisfaction_score"`
	Reason            string   `json:"reason"`
	Issues            []string `json:"issues"`
	Suggestions       []string `json:"suggestions"`
}

// Passes reports whether the review clears threshold and was approved.
func (r ReviewResult) Passes(threshold int) bool {
	return r.SatisfactionScore >= threshold && r.Approved
}

var truthyTokens = map[string]bool{
	"true":     true,
	"yes":      true,
	"同意":       true,
	"通过":       true,
	"approved": true,
}

// NormalizeReview maps the key variants a model may use onto ReviewResult.
//
// English keys win; Chinese and short aliases are consulted only when the
// English key is absent or null. Issues and suggestions fall back to the
// reason so a fix request always has something to work from.
func NormalizeReview(raw map[string]any) ReviewResult {
	var r ReviewResult

	approved := raw["approved"]
	if approved == nil {
		approved = or(raw["是否同意"], raw["agree"])
	}
	if s, ok := approved.(string); ok {
		r.Approved = truthyTokens[strings.ToLower(strings.TrimSpace(s))]
	} else {
		r.Approved = truthy(approved)
	}

	score := raw["satisfaction_score"]
	if score == nil {
		score = or(raw["满意分数"], raw["score"])
	}
	r.SatisfactionScore = toInt(score)

	r.Reason = stringValue(or(raw["reason"], raw["理由"]))

	r.Issues = toStringList(or(raw["issues"], raw["问题"]))
	if len(r.Issues) == 0 && r.Reason != "" {
		r.Issues = []string{r.Reason}
	}

	r.Suggestions = toStringList(or(raw["suggestions"], raw["建议"]))
	if len(r.Suggestions) == 0 && r.Reason != "" {
		r.Suggestions = []string{FixByReasonPrefix + r.Reason}
	}

	if r.Issues == nil {
		r.Issues = []string{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	return r
}

// FailedReview is the result reported when the review call itself keeps
// failing.
func FailedReview(err error) ReviewResult {
	return ReviewResult{
		Approved:          false,
		SatisfactionScore: 0,
		Reason:            reviewFailedReasonPrefix + err.Error(),
		Issues:            []string{reviewFailedIssue},
		Suggestions:       []string{reviewFailedSuggestion},
	}
}

// or returns the first truthy value, or nil if none is. An empty alias
// therefore reads as absent and the reason fallbacks still apply.
func or(vals ...any) any {
	for _, v := range vals {
		if truthy(v) {
			return v
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func toInt(v any) int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		return t
	case int64:
		return int(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

func toStringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringValue(item))
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}
