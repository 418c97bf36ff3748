// Package terms turns a flat coefficient table into attributions on variables, levels and
// interaction pairs.
package terms

import (
	"math"
	"strings"

	"goglm/domain/core"
	"goglm/domain/model"
)

// Kind tags the variant of a parsed term
type Kind int

const (
	KindUnparsed Kind = iota
	KindIntercept
	KindCategorical
	KindNumeric
	KindInteraction
)

func (k Kind) String() string {
	switch k {
	case KindIntercept:
		return "intercept"
	case KindCategorical:
		return "categorical"
	case KindNumeric:
		return "numeric"
	case KindInteraction:
		return "interaction"
	default:
		return "unparsed"
	}
}

// Grammar tokens
const (
	InterceptName     = "intercept"
	InteractionPrefix = "interaction:"
	DummyPrefix       = "dummy:"
	MemberSeparator   = "::"
	NumericSentinel   = "_"
	numericSuffix     = ":" + NumericSentinel
)

// Member is one side of an interaction term. A blank level marks a numeric member.
type Member struct {
	Variable string
	Level    string
}

// IsNumeric reports whether the member carries the numeric sentinel
func (m Member) IsNumeric() bool {
	return m.Level == ""
}

// Term is the parsed form of one coefficient row. Exactly one variant is set by Kind:
// Variable/Level for main effects, Members for interactions, Err for unparsed terms.
type Term struct {
	model.CoefficientTerm
	Kind             Kind
	Variable         string
	Level            string
	Members          [2]Member
	StandardErrorPct float64
	Err              error
}

// Parse classifies a single coefficient term. It never fails; unknown shapes come back as
// KindUnparsed with Err set.
func Parse(ct model.CoefficientTerm) Term {
	t := Term{CoefficientTerm: ct, StandardErrorPct: standardErrorPct(ct)}
	name := ct.Term

	switch {
	case name == InterceptName:
		t.Kind = KindIntercept

	case strings.HasPrefix(name, InteractionPrefix):
		first, second, ok := parseInteraction(strings.TrimPrefix(name, InteractionPrefix))
		if !ok {
			return unparsed(t)
		}
		t.Kind = KindInteraction
		t.Members = [2]Member{first, second}

	case strings.HasSuffix(name, numericSuffix):
		variable, ok := parseNumeric(strings.TrimSuffix(name, numericSuffix))
		if !ok {
			return unparsed(t)
		}
		t.Kind = KindNumeric
		t.Variable = variable

	case strings.HasPrefix(name, DummyPrefix):
		rest := strings.TrimPrefix(name, DummyPrefix)
		i := strings.Index(rest, ":")
		if i <= 0 || i == len(rest)-1 {
			return unparsed(t)
		}
		t.Kind = KindCategorical
		t.Variable = rest[:i]
		t.Level = rest[i+1:]

	default:
		return unparsed(t)
	}
	return t
}

func unparsed(t Term) Term {
	t.Kind = KindUnparsed
	t.Err = core.NewMalformedTermError(t.Term)
	return t
}

// parseNumeric accepts "<variable>" or "<tag>:<variable>" once the ":_" suffix is removed
func parseNumeric(s string) (string, bool) {
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return "", false
	}
	return s, true
}

func parseInteraction(s string) (Member, Member, bool) {
	j := strings.Index(s, ":")
	if j <= 0 {
		return Member{}, Member{}, false
	}
	rest := s[j+1:]
	i := strings.Index(rest, MemberSeparator)
	if i < 0 {
		return Member{}, Member{}, false
	}
	first := Member{Variable: s[:j], Level: NormalizeLevel(rest[:i])}
	second, ok := parseMember(rest[i+len(MemberSeparator):])
	return first, second, ok
}

func parseMember(s string) (Member, bool) {
	i := strings.Index(s, ":")
	if i <= 0 {
		return Member{}, false
	}
	return Member{Variable: s[:i], Level: NormalizeLevel(s[i+1:])}, true
}

// NormalizeLevel maps the numeric sentinel to the blank level
func NormalizeLevel(level string) string {
	if level == NumericSentinel {
		return ""
	}
	return level
}

func standardErrorPct(ct model.CoefficientTerm) float64 {
	pct := ct.StandardError / math.Abs(ct.Coefficient) * 100
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return pct
}
