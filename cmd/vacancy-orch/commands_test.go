package main

import (
	"path/filepath"
	"testing"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/extract"
)

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"serve", "run", "credentials", "sites", "extract", "verdicts", "runs", "schedules", "watch"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestSaveTaskFile(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		keepResult bool
	}{
		{"yaml", "tasks.yaml", false},
		{"json", "tasks.json", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			tasks := []*domain.PropertyTask{
				{ID: "a", PropertyName: "Sunny Heights", RoomNumber: "203", Status: domain.TaskCompleted,
					Result: &domain.FinalVerdict{PropertyName: "Sunny Heights", FinalStatus: domain.FinalOccupied}},
				{ID: "b", PropertyName: "メゾン青葉", Status: domain.TaskPending},
			}
			if err := saveTaskFile(path, tasks); err != nil {
				t.Fatalf("saveTaskFile() error = %v", err)
			}

			got, err := extract.LoadTaskFile(path)
			if err != nil {
				t.Fatalf("LoadTaskFile() error = %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d tasks, want 2", len(got))
			}
			if got[0].ID != "a" || got[0].Status != domain.TaskCompleted {
				t.Errorf("first task = %+v", got[0])
			}
			if got[1].PropertyName != "メゾン青葉" || got[1].Status != domain.TaskPending {
				t.Errorf("second task = %+v", got[1])
			}
			if hasResult := got[0].Result != nil; hasResult != tt.keepResult {
				t.Errorf("result kept = %v, want %v", hasResult, tt.keepResult)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("v1"); got != "v1" {
		t.Errorf("shortID(short) = %q", got)
	}
}
