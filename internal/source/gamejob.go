package source

import (
	"fmt"
	"net/url"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

const (
	gamejobBase     = "https://www.gamejob.co.kr"
	gamejobEncoding = "euc-kr"
)

var (
	gamejobProfile     = Profile{Tag: Gamejob, JobType: "신입", Category: "게임", Tags: []string{"게임잡"}}
	gamejobDutyProfile = Profile{Tag: GamejobDuty, JobType: "신입/경력", Category: "게임", Tags: []string{"게임잡"}}
)

var gamejobItem = listItem{
	row:      `.list tr[class^="row"]`,
	company:  ".col-company a",
	position: []string{".col-subject a"},
	link:     ".col-subject a",
	deadline: ".col-date",
}

var gamejobDutyItem = listItem{
	row:      ".list.cf li",
	company:  ".company strong",
	position: []string{".description a strong", ".description a"},
	link:     ".description a",
	deadline: ".dday",
}

// ParseGamejobList reads a GIB_List search page.
func ParseGamejobList(payload []byte) ([]ingest.RawCandidate, ParseStats, error) {
	return parseList(payload, gamejobBase, gamejobItem, gamejobProfile)
}

// ParseGamejobDuty reads the by-duty job list. The title is taken from the
// emphasized part of the link when there is one.
func ParseGamejobDuty(payload []byte) ([]ingest.RawCandidate, ParseStats, error) {
	return parseList(payload, gamejobBase, gamejobDutyItem, gamejobDutyProfile)
}

// The board expects its search word in euc-kr.
func gamejobPageURL(query string, page int) string {
	if query == "" {
		query = "신입"
	}
	return fmt.Sprintf("%s/List_GI/GIB_List.asp?Part_No=0&Search_Word=%s&GI_Page=%d",
		gamejobBase, escapeEUCKR(query), page)
}

// The duty list is a single page per duty code.
func gamejobDutyPageURL(duty string, _ int) string {
	if duty == "" {
		duty = "1"
	}
	return fmt.Sprintf("%s/Recruit/joblist?menucode=duty&duty=%s", gamejobBase, url.QueryEscape(duty))
}
