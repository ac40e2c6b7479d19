package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

func TestEvaluateDefaults(t *testing.T) {
	t.Parallel()

	f := New(DefaultRules())

	tests := []struct {
		name     string
		company  string
		position string
		keep     bool
		reason   Reason
		term     string
	}{
		{name: "nc guard passes real company", company: "엔씨소프트", position: "서버 개발", keep: true, reason: ReasonAccepted},
		{name: "nc guard blocks substring", company: "씨엔씨테크", position: "서버 개발", reason: ReasonNoContext},
		{name: "hospital excluded", company: "XX병원", position: "게임 개발", reason: ReasonExcluded, term: "병원"},
		{name: "ae excluded", company: "게임사", position: "AE 모집", reason: ReasonExcluded, term: "ae"},
		{name: "senior title", company: "크래프톤", position: "시니어 게임 클라이언트 프로그래머", reason: ReasonSenior, term: "시니어"},
		{name: "english lead", company: "Studio", position: "Lead Game Engineer", reason: ReasonSenior, term: "lead"},
		{name: "five years", company: "넥슨", position: "게임 서버 개발 (경력 5년 이상)", reason: ReasonExperience, term: "5년"},
		{name: "three years without entry marker", company: "넷마블", position: "게임 기획 (경력 3년)", reason: ReasonExperience, term: "3년"},
		{name: "three years with entry marker", company: "넷마블", position: "신입/경력 3년 이하 게임 기획", keep: true, reason: ReasonAccepted},
		{name: "one year passes", company: "컴투스", position: "게임 QA 1년 이상", keep: true, reason: ReasonAccepted},
		{name: "calendar year ignored", company: "펄어비스", position: "2025년 신입 게임 개발자 공채", keep: true, reason: ReasonAccepted},
		{name: "director is a role", company: "스마일게이트", position: "게임 디렉터 어시스턴트", keep: true, reason: ReasonAccepted, term: "디렉터"},
		{name: "mixed case context", company: "Indie", position: "Unity 클라이언트", keep: true, reason: ReasonAccepted, term: "클라이언트"},
		{name: "no role", company: "넥슨", position: "게임 운영 담당", reason: ReasonNoRole},
		{name: "no context", company: "테크스타트업", position: "백엔드 개발", reason: ReasonNoContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := ingest.RawCandidate{Company: tt.company, Position: tt.position}
			got := f.Evaluate(c)
			require.Equal(t, tt.keep, got.Keep)
			require.Equal(t, tt.reason, got.Reason)
			if tt.term != "" {
				require.Equal(t, tt.term, got.Term)
			}
			require.Equal(t, tt.keep, f.IsValid(c))
		})
	}
}

func TestEvaluateCustomThresholds(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	rules.SeniorYears = 6
	rules.ConditionalYearsMin = 0
	f := New(rules)

	require.True(t, f.IsValid(ingest.RawCandidate{Company: "넥슨", Position: "게임 서버 개발 (경력 5년)"}))
	require.False(t, f.IsValid(ingest.RawCandidate{Company: "넥슨", Position: "게임 서버 개발 (경력 7년)"}))
}

func TestEvaluateCustomLists(t *testing.T) {
	t.Parallel()

	f := New(Rules{
		Context: []string{"  Roguelike "},
		Roles:   []string{"DESIGNER"},
	})

	got := f.Evaluate(ingest.RawCandidate{Company: "Tiny Studio", Position: "Roguelike Level Designer"})
	require.Equal(t, Decision{Keep: true, Reason: ReasonAccepted, Term: "designer"}, got)

	// Empty exclude and senior lists never reject.
	got = f.Evaluate(ingest.RawCandidate{Company: "Tiny Studio", Position: "Senior Roguelike Designer, 10년"})
	require.True(t, got.Keep)
}
