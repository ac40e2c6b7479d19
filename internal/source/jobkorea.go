package source

import (
	"fmt"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

const jobkoreaBase = "https://www.jobkorea.co.kr"

var jobkoreaProfile = Profile{Tag: JobKorea, JobType: "신입", Category: "기타", Tags: []string{"잡코리아"}}

var jobkoreaItem = listItem{
	row:      ".list-post .post",
	company:  ".name",
	position: []string{".title"},
	link:     ".title",
	deadline: ".date",
}

// ParseJobKorea reads a recruit search page.
func ParseJobKorea(payload []byte) ([]ingest.RawCandidate, ParseStats, error) {
	return parseList(payload, jobkoreaBase, jobkoreaItem, jobkoreaProfile)
}

func jobkoreaPageURL(query string, page int) string {
	if query == "" {
		query = "게임 신입"
	}
	return fmt.Sprintf("%s/Search/?stext=%s&tabType=recruit&Page_No=%d", jobkoreaBase, escapeQuery(query), page)
}
