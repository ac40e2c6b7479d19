// Package filter decides whether a scraped candidate is an entry-level game
// industry posting.
package filter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

// Reason names the rule that rejected a candidate.
type Reason string

const (
	ReasonAccepted   Reason = "accepted"
	ReasonExcluded   Reason = "excluded"
	ReasonSenior     Reason = "senior"
	ReasonExperience Reason = "experience"
	ReasonNoContext  Reason = "no_context"
	ReasonNoRole     Reason = "no_role"
)

// Decision is the outcome of Evaluate. Term is the keyword that triggered the
// decision, when there was one.
type Decision struct {
	Keep   bool
	Reason Reason
	Term   string
}

// Rules holds the keyword lists and experience thresholds.
type Rules struct {
	Exclude      []string
	Senior       []string
	EntryMarkers []string
	Context      []string
	Roles        []string
	// ContextGuards suppresses a context match when any of the listed
	// strings also appears in the text.
	ContextGuards map[string][]string
	// SeniorYears and above is always rejected.
	SeniorYears int
	// Years in [ConditionalYearsMin, SeniorYears) need an entry marker.
	ConditionalYearsMin int
}

// DefaultRules returns the built-in keyword lists.
func DefaultRules() Rules {
	return Rules{
		Exclude: []string{
			"의료", "바이오", "금융", "은행", "증권", "보험", "회계", "세무",
			"반도체", "자율주행", "하드웨어", "제조", "건설", "공사", "공단", "병원", "약사",
			"쇼핑몰", "커머스", "물류", "택배", "남동발전", "카지노", "저축은행",
			"광고대행", "ae", "기업브랜딩", "마케팅전문",
		},
		Senior: []string{
			"시니어", "senior", "리드", "lead", "팀장", "매니저", "manager",
			"책임", "수석", "principal", "실장", "경력직",
		},
		EntryMarkers: []string{"신입", "인턴", "entry", "junior", "주니어", "intern"},
		Context: []string{
			"게임", "game", "엔진", "언리얼", "유니티", "unreal", "unity", "cocos",
			"rpg", "fps", "mmo", "tps", "aos", "모바일게임", "캐주얼게임", "그래픽스",
			"넥슨", "넷마블", "엔씨", "크래프톤", "펄어비스", "스마일게이트", "컴투스", "카카오게임즈",
			"위메이드", "웹젠", "그라비티", "데브시스터즈", "시프트업", "조이시티", "액션스퀘어",
		},
		Roles: []string{
			"개발", "기획", "아트", "그래픽", "원화", "qa", "테스터", "프로그래머", "디렉터",
			"디자이너", "모델러", "애니메이터", "클라이언트", "서버", "이펙터", "엔지니어",
		},
		ContextGuards:       map[string][]string{"엔씨": {"씨엔씨"}},
		SeniorYears:         4,
		ConditionalYearsMin: 2,
	}
}

// experiencePattern matches "3년", "5 년차" but not the tail of a calendar year.
var experiencePattern = regexp.MustCompile(`(?:^|\D)(\d{1,2})\s*년`)

// Filter applies Rules. It holds no mutable state and is safe for concurrent use.
type Filter struct {
	rules Rules
}

// New lowercases every keyword once so Evaluate can compare directly.
func New(rules Rules) *Filter {
	guards := make(map[string][]string, len(rules.ContextGuards))
	for term, deny := range rules.ContextGuards {
		guards[strings.ToLower(term)] = lowerAll(deny)
	}
	return &Filter{rules: Rules{
		Exclude:             lowerAll(rules.Exclude),
		Senior:              lowerAll(rules.Senior),
		EntryMarkers:        lowerAll(rules.EntryMarkers),
		Context:             lowerAll(rules.Context),
		Roles:               lowerAll(rules.Roles),
		ContextGuards:       guards,
		SeniorYears:         rules.SeniorYears,
		ConditionalYearsMin: rules.ConditionalYearsMin,
	}}
}

// Evaluate runs the rules in order: exclude, seniority, context, role.
func (f *Filter) Evaluate(c ingest.RawCandidate) Decision {
	text := strings.ToLower(c.Company) + strings.ToLower(c.Position)

	if term, ok := firstMatch(text, f.rules.Exclude); ok {
		return reject(ReasonExcluded, term)
	}
	if term, ok := firstMatch(text, f.rules.Senior); ok {
		return reject(ReasonSenior, term)
	}
	if d, rejected := f.checkExperience(text); rejected {
		return d
	}

	hasContext := false
	for _, term := range f.rules.Context {
		if !strings.Contains(text, term) {
			continue
		}
		if _, guarded := firstMatch(text, f.rules.ContextGuards[term]); guarded {
			continue
		}
		hasContext = true
		break
	}
	if !hasContext {
		return reject(ReasonNoContext, "")
	}

	term, ok := firstMatch(text, f.rules.Roles)
	if !ok {
		return reject(ReasonNoRole, "")
	}
	return Decision{Keep: true, Reason: ReasonAccepted, Term: term}
}

// IsValid reports whether Evaluate keeps c.
func (f *Filter) IsValid(c ingest.RawCandidate) bool {
	return f.Evaluate(c).Keep
}

func (f *Filter) checkExperience(text string) (Decision, bool) {
	years := -1
	for _, m := range experiencePattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > years {
			years = n
		}
	}
	if years < 0 {
		return Decision{}, false
	}
	term := strconv.Itoa(years) + "년"
	if f.rules.SeniorYears > 0 && years >= f.rules.SeniorYears {
		return reject(ReasonExperience, term), true
	}
	if years >= f.rules.ConditionalYearsMin && f.rules.ConditionalYearsMin > 0 {
		if _, entry := firstMatch(text, f.rules.EntryMarkers); !entry {
			return reject(ReasonExperience, term), true
		}
	}
	return Decision{}, false
}

func reject(reason Reason, term string) Decision {
	return Decision{Keep: false, Reason: reason, Term: term}
}

func firstMatch(text string, terms []string) (string, bool) {
	for _, term := range terms {
		if term != "" && strings.Contains(text, term) {
			return term, true
		}
	}
	return "", false
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
