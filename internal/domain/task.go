package domain

import (
	"fmt"
	"strings"
)

// SiteCredential is one row of the credentials source
type SiteCredential struct {
	SiteName string `json:"siteName" yaml:"site_name"`
	URL      string `json:"url" yaml:"url"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"-" yaml:"-"`
	Notes    string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Site is a resolved verification target. A nil Credential means the site
// is visited in public/demo mode.
type Site struct {
	Name       string          `json:"name"`
	URL        string          `json:"url"`
	Credential *SiteCredential `json:"-"`
}

// Authenticated reports whether the site carries a credential
func (s Site) Authenticated() bool {
	return s.Credential != nil
}

// PropertyRecord is a property as returned by the extraction collaborator
type PropertyRecord struct {
	PropertyName      string `json:"propertyName" yaml:"property_name"`
	RoomNumber        string `json:"roomNumber" yaml:"room_number"`
	Address           string `json:"address" yaml:"address"`
	ManagementCompany string `json:"managementCompany" yaml:"management_company"`
	FloorPlan         string `json:"floorPlan,omitempty" yaml:"floor_plan,omitempty"`
	Rent              string `json:"rent,omitempty" yaml:"rent,omitempty"`
	Deposit           string `json:"deposit,omitempty" yaml:"deposit,omitempty"`
	KeyMoney          string `json:"keyMoney,omitempty" yaml:"key_money,omitempty"`
	Notes             string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// PropertyTask is one property queued for verification. Status and Result
// are owned by the engine for the duration of a run.
type PropertyTask struct {
	ID                string        `json:"id" yaml:"id"`
	PropertyName      string        `json:"propertyName" yaml:"property_name"`
	RoomNumber        string        `json:"roomNumber" yaml:"room_number"`
	Address           string        `json:"address" yaml:"address"`
	ManagementCompany string        `json:"managementCompany" yaml:"management_company"`
	Status            TaskStatus    `json:"status" yaml:"status"`
	Result            *FinalVerdict `json:"result,omitempty" yaml:"-"`
}

// Label returns a short human-readable name for logs and telemetry
func (t *PropertyTask) Label() string {
	if t.RoomNumber == "" {
		return t.PropertyName
	}
	return fmt.Sprintf("%s %s", t.PropertyName, t.RoomNumber)
}

// SearchQuery returns the text typed into listing site search boxes
func (t *PropertyTask) SearchQuery() string {
	return strings.TrimSpace(strings.Join([]string{t.PropertyName, t.RoomNumber}, " "))
}
