package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// Occupied keywords are checked first: "空室なし" and "not available"
// contain available keywords.
var occupiedKeywords = []string{
	"空室なし",
	"成約済",
	"成約",
	"申込あり",
	"申込済",
	"入居中",
	"満室",
	"募集終了",
	"掲載終了",
	"not available",
	"no vacancy",
	"unavailable",
	"occupied",
	"rented",
	"leased",
}

var availableKeywords = []string{
	"空室あり",
	"空室",
	"募集中",
	"即入居",
	"入居可",
	"available",
	"vacant",
	"for rent",
}

// Classify maps page text to a site outcome by keyword search
func Classify(text string) (domain.SiteStatus, string) {
	if strings.TrimSpace(text) == "" {
		return domain.SiteUnknown, "page was empty"
	}
	lower := strings.ToLower(text)
	for _, kw := range occupiedKeywords {
		if strings.Contains(lower, kw) {
			return domain.SiteOccupied, fmt.Sprintf("matched %q", kw)
		}
	}
	for _, kw := range availableKeywords {
		if strings.Contains(lower, kw) {
			return domain.SiteAvailable, fmt.Sprintf("matched %q", kw)
		}
	}
	return domain.SiteUnknown, "no availability keywords found"
}

var updatedPattern = regexp.MustCompile(`(?i)(?:更新日|情報更新|last updated|updated)[^0-9]{0,12}(\d{4})[/.\-年](\d{1,2})[/.\-月](\d{1,2})`)

// LastUpdated finds the listing's update date in page text
func LastUpdated(text string) *time.Time {
	m := updatedPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}
