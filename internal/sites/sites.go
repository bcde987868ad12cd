// Package sites turns loaded credentials into the ordered list of listing
// sites a verification run visits.
package sites

import (
	"strings"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

type knownSite struct {
	patterns []string
	url      string
}

// knownSites maps listing site names to their entry URLs. Order matters:
// "atbb" must be tried before "athome" since ATBB names often mention at home.
var knownSites = []knownSite{
	{patterns: []string{"reins", "レインズ"}, url: "https://system.reins.jp/"},
	{patterns: []string{"atbb"}, url: "https://atbb.athome.jp/"},
	{patterns: []string{"athome", "at home", "at-home", "アットホーム"}, url: "https://www.athome.co.jp/"},
	{patterns: []string{"suumo", "スーモ"}, url: "https://suumo.jp/"},
	{patterns: []string{"homes", "home's", "ホームズ"}, url: "https://www.homes.co.jp/"},
	{patterns: []string{"chintai", "チンタイ"}, url: "https://www.chintai.net/"},
	{patterns: []string{"itandi", "イタンジ"}, url: "https://itandibb.com/"},
	{patterns: []string{"es-square", "いい生活"}, url: "https://rent.es-square.net/"},
}

// DemoSites is the fallback list used when no credentials are available.
// Both entries are visited in public mode.
func DemoSites() []domain.Site {
	return []domain.Site{
		{Name: "SUUMO", URL: "https://suumo.jp/"},
		{Name: "HOME'S", URL: "https://www.homes.co.jp/"},
	}
}

// LookupURL returns the known entry URL for a site name, or "" when the name
// matches no known listing site.
func LookupURL(name string) string {
	lower := strings.ToLower(name)
	for _, ks := range knownSites {
		for _, p := range ks.patterns {
			if strings.Contains(lower, p) {
				return ks.url
			}
		}
	}
	return ""
}

// Resolve builds the site list for a run. Each credential becomes an
// authenticated site; a missing URL is derived from the site name and left
// empty when nothing matches. Without credentials the demo list is returned.
func Resolve(creds []domain.SiteCredential) []domain.Site {
	if len(creds) == 0 {
		return DemoSites()
	}

	out := make([]domain.Site, 0, len(creds))
	for i := range creds {
		cred := creds[i]
		url := strings.TrimSpace(cred.URL)
		if url == "" {
			url = LookupURL(cred.SiteName)
		}
		out = append(out, domain.Site{
			Name:       cred.SiteName,
			URL:        url,
			Credential: &cred,
		})
	}
	return out
}
