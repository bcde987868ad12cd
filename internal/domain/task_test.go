package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPropertyTask_Label(t *testing.T) {
	tests := []struct {
		name string
		task PropertyTask
		want string
	}{
		{"with room", PropertyTask{PropertyName: "Sunny Heights", RoomNumber: "203"}, "Sunny Heights 203"},
		{"without room", PropertyTask{PropertyName: "Sunny Heights"}, "Sunny Heights"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Label(); got != tt.want {
				t.Errorf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPropertyTask_SearchQuery(t *testing.T) {
	task := PropertyTask{PropertyName: "メゾン青葉", RoomNumber: ""}
	if got := task.SearchQuery(); got != "メゾン青葉" {
		t.Errorf("SearchQuery() = %q, want %q", got, "メゾン青葉")
	}
}

func TestSiteCredential_PasswordNotSerialized(t *testing.T) {
	cred := SiteCredential{SiteName: "REINS", Username: "agent", Password: "secret"}
	data, err := json.Marshal(cred)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("password leaked into JSON: %s", data)
	}
}

func TestRunSummary_Duration(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	r := RunSummary{StartedAt: start}
	if r.Duration() != 0 {
		t.Errorf("unfinished run duration = %v, want 0", r.Duration())
	}
	r.FinishedAt = start.Add(90 * time.Second)
	if r.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v, want 90s", r.Duration())
	}
}
