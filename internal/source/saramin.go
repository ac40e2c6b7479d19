package source

import (
	"fmt"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

const saraminBase = "https://www.saramin.co.kr"

var saraminProfile = Profile{Tag: Saramin, JobType: "신입", Category: "기타", Tags: []string{"사람인"}}

var saraminItem = listItem{
	row:      ".item_recruit",
	company:  ".corp_name a",
	position: []string{".job_tit a"},
	link:     ".job_tit a",
	deadline: ".date",
}

// ParseSaramin reads a search result page.
func ParseSaramin(payload []byte) ([]ingest.RawCandidate, ParseStats, error) {
	return parseList(payload, saraminBase, saraminItem, saraminProfile)
}

func saraminPageURL(query string, page int) string {
	if query == "" {
		query = "게임 신입"
	}
	return fmt.Sprintf("%s/zf_user/search/recruit?searchword=%s&exp_cd=1&sort=date&recruitPage=%d",
		saraminBase, escapeQuery(query), page)
}
