// Package extract turns property documents into verification tasks. The
// heavy lifting happens in an upstream extraction service; this package
// only talks to it, cleans up its output and seeds pending tasks.
package extract

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// Extractor returns the property records found in a document
type Extractor interface {
	Extract(ctx context.Context, doc []byte) ([]domain.PropertyRecord, error)
}

const allowedPunct = " -_・ー()/#.,、。:;'&〒~〜+%@「」『』"

func allowed(r rune) bool {
	switch {
	case unicode.IsDigit(r):
		return true
	case unicode.In(r, unicode.Latin, unicode.Han, unicode.Hiragana, unicode.Katakana):
		return true
	case unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune(allowedPunct, r)
}

// Sanitize normalizes s to NFKC, drops characters outside the allowed
// scripts and punctuation, and collapses whitespace.
func Sanitize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if allowed(r) {
			return r
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeRecord applies Sanitize to every field of rec
func SanitizeRecord(rec domain.PropertyRecord) domain.PropertyRecord {
	return domain.PropertyRecord{
		PropertyName:      Sanitize(rec.PropertyName),
		RoomNumber:        Sanitize(rec.RoomNumber),
		Address:           Sanitize(rec.Address),
		ManagementCompany: Sanitize(rec.ManagementCompany),
		FloorPlan:         Sanitize(rec.FloorPlan),
		Rent:              Sanitize(rec.Rent),
		Deposit:           Sanitize(rec.Deposit),
		KeyMoney:          Sanitize(rec.KeyMoney),
		Notes:             Sanitize(rec.Notes),
	}
}

// ToTasks sanitizes records and seeds one pending task per record.
// Records without a property name after sanitizing are skipped.
func ToTasks(records []domain.PropertyRecord) []*domain.PropertyTask {
	tasks := make([]*domain.PropertyTask, 0, len(records))
	for _, rec := range records {
		rec = SanitizeRecord(rec)
		if rec.PropertyName == "" {
			continue
		}
		tasks = append(tasks, &domain.PropertyTask{
			ID:                uuid.New().String(),
			PropertyName:      rec.PropertyName,
			RoomNumber:        rec.RoomNumber,
			Address:           rec.Address,
			ManagementCompany: rec.ManagementCompany,
			Status:            domain.TaskPending,
		})
	}
	return tasks
}
