package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPostingIdentityKeyIgnoresCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	a := Posting{Company: "Nexon Korea", Position: "게임 서버 개발"}
	b := Posting{Company: "nexon\tkorea ", Position: "게임서버  개발"}
	require.Equal(t, a.IdentityKey(), b.IdentityKey())
	require.Equal(t, "nexonkorea|게임서버개발", a.IdentityKey())
}

func TestNormalizeTags(t *testing.T) {
	t.Parallel()

	got := NormalizeTags([]string{"원티드", " 게임", "", "원티드", "신입"})
	require.Equal(t, []string{"원티드", "게임", "신입"}, got)
}

func TestNewDateRejectsOverflow(t *testing.T) {
	t.Parallel()

	_, ok := NewDate(2025, time.February, 30)
	require.False(t, ok)
	_, ok = NewDate(2025, 13, 1)
	require.False(t, ok)
	d, ok := NewDate(2024, time.February, 29)
	require.True(t, ok)
	require.Equal(t, "2024-02-29", d.String())
}

func TestDateArithmetic(t *testing.T) {
	t.Parallel()

	d := Date{Year: 2025, Month: time.December, Day: 31}
	require.Equal(t, Date{Year: 2026, Month: time.January, Day: 1}, d.AddDays(1))
	require.Equal(t, Date{Year: 2025, Month: time.December, Day: 1}, d.AddDays(-30))
	require.True(t, d.AddDays(-1).Before(d))
	require.False(t, d.Before(d))
}

func TestPostingJSONShape(t *testing.T) {
	t.Parallel()

	deadline := Date{Year: 2025, Month: time.March, Day: 15}
	p := Posting{
		Company:  "넥슨",
		Position: "클라이언트 개발",
		Link:     "https://www.wanted.co.kr/wd/1",
		Deadline: &deadline,
		JobType:  "수시",
		Category: "프로그래밍",
		Tags:     []string{"원티드"},
		IsActive: true,
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, `{"company":"넥슨","position":"클라이언트 개발","link":"https://www.wanted.co.kr/wd/1",
		"deadline":"2025-03-15","job_type":"수시","category":"프로그래밍","tags":["원티드"],"is_active":true}`, string(raw))

	p.Deadline = nil
	raw, err = json.Marshal(p)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"deadline":null`)

	var decoded Posting
	require.NoError(t, json.Unmarshal([]byte(`{"link":"x","deadline":"2025-03-15T00:00:00+00:00"}`), &decoded))
	require.NotNil(t, decoded.Deadline)
	require.Equal(t, deadline, *decoded.Deadline)
}
