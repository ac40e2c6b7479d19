package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

const (
	wantedBase     = "https://www.wanted.co.kr"
	wantedPageSize = 100
)

var wantedProfile = Profile{
	Tag:      Wanted,
	JobType:  "수시",
	Category: "프로그래밍",
	Tags:     []string{"원티드", "게임", "신입"},
}

type wantedJob struct {
	ID       json.RawMessage `json:"id"`
	Position string          `json:"position"`
	Company  struct {
		Name string `json:"name"`
	} `json:"company"`
	DueTime *string `json:"due_time"`
}

// ParseWanted reads a jobs API page. The items live under "data"; a bare array
// is accepted as well.
func ParseWanted(payload []byte) ([]ingest.RawCandidate, ParseStats, error) {
	var jobs []wantedJob
	trimmed := bytes.TrimSpace(payload)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &jobs); err != nil {
			return nil, ParseStats{}, fmt.Errorf("decode wanted jobs: %w", err)
		}
	} else {
		var envelope struct {
			Data []wantedJob `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, ParseStats{}, fmt.Errorf("decode wanted jobs: %w", err)
		}
		jobs = envelope.Data
	}

	stats := ParseStats{Items: len(jobs)}
	out := make([]ingest.RawCandidate, 0, len(jobs))
	for _, job := range jobs {
		id := strings.Trim(strings.TrimSpace(string(job.ID)), `"`)
		company := strings.TrimSpace(job.Company.Name)
		position := strings.TrimSpace(job.Position)
		if id == "" || id == "null" || company == "" || position == "" {
			stats.Skipped++
			continue
		}
		deadline := ""
		if job.DueTime != nil {
			deadline = *job.DueTime
		}
		out = append(out, wantedProfile.stamp(ingest.RawCandidate{
			Company:     company,
			Position:    position,
			RawLink:     wantedBase + "/wd/" + id,
			RawDeadline: deadline,
		}))
	}
	return out, stats, nil
}

func wantedPageURL(tagID string, page int) string {
	if tagID == "" {
		tagID = "518"
	}
	offset := (page - 1) * wantedPageSize
	return fmt.Sprintf("%s/api/v4/jobs?country=kr&tag_type_ids=%s&years=0&limit=%d&offset=%d",
		wantedBase, url.QueryEscape(tagID), wantedPageSize, offset)
}
