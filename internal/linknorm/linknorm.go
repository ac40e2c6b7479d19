// Package linknorm canonicalizes posting URLs into stable identity keys.
package linknorm

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var saraminRecIdx = regexp.MustCompile(`rec_idx=(\d+)`)

const saraminTemplate = "https://www.saramin.co.kr/zf_user/jobs/relay/view?view_type=search&rec_idx=%s"

// Normalize trims the link and strips its trailing slash. Saramin postings are
// identified by their rec_idx query parameter alone, so any saramin URL carrying
// one is rewritten to a fixed template. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	link := strings.TrimLeftFunc(raw, unicode.IsSpace)
	link = strings.TrimRightFunc(link, func(r rune) bool {
		return r == '/' || unicode.IsSpace(r)
	})
	if strings.Contains(link, "saramin.co.kr") {
		if m := saraminRecIdx.FindStringSubmatch(link); m != nil {
			return fmt.Sprintf(saraminTemplate, m[1])
		}
	}
	return link
}

// Resolve joins href against base and normalizes the result. It returns an
// empty string when href is blank or cannot be parsed.
func Resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || href == "#" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if !ref.IsAbs() {
		b, err := url.Parse(base)
		if err != nil || b.Host == "" {
			return ""
		}
		ref = b.ResolveReference(ref)
	}
	if ref.Host == "" || (ref.Scheme != "http" && ref.Scheme != "https") {
		return ""
	}
	return Normalize(ref.String())
}
