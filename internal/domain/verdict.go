package domain

import "time"

// SiteVerificationResult is the outcome of visiting one site for one property
type SiteVerificationResult struct {
	SiteName    string     `json:"siteName"`
	URL         string     `json:"url,omitempty"`
	Status      SiteStatus `json:"status"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// FinalVerdict is the aggregated availability conclusion for one property
type FinalVerdict struct {
	PropertyName        string                   `json:"propertyName"`
	RoomNumber          string                   `json:"roomNumber"`
	Address             string                   `json:"address"`
	ManagementCompany   string                   `json:"managementCompany"`
	VerificationResults []SiteVerificationResult `json:"verificationResults"`
	FinalStatus         FinalStatus              `json:"finalStatus"`
	LastVerified        time.Time                `json:"lastVerified"`
	Notes               string                   `json:"notes,omitempty"`
}

// CountByStatus tallies the site results by status
func (v *FinalVerdict) CountByStatus() map[SiteStatus]int {
	counts := make(map[SiteStatus]int)
	for _, r := range v.VerificationResults {
		counts[r.Status]++
	}
	return counts
}
