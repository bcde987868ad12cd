package extract

import (
	"context"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// FixtureExtractor ignores the document and returns a fixed record set
type FixtureExtractor struct {
	Records []domain.PropertyRecord
}

// NewFixtureExtractor returns an extractor serving FixtureRecords
func NewFixtureExtractor() *FixtureExtractor {
	return &FixtureExtractor{Records: FixtureRecords()}
}

// Extract returns a copy of the fixed records
func (f *FixtureExtractor) Extract(ctx context.Context, _ []byte) ([]domain.PropertyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.PropertyRecord, len(f.Records))
	copy(out, f.Records)
	return out, nil
}

// FixtureRecords is the synthetic record set used in fixture mode
func FixtureRecords() []domain.PropertyRecord {
	return []domain.PropertyRecord{
		{
			PropertyName:      "サンライズ代々木",
			RoomNumber:        "203",
			Address:           "東京都渋谷区代々木1-2-3",
			ManagementCompany: "代々木管理株式会社",
			FloorPlan:         "1K",
			Rent:              "85,000円",
			Deposit:           "1ヶ月",
			KeyMoney:          "1ヶ月",
		},
		{
			PropertyName:      "グランメゾン中野",
			RoomNumber:        "501",
			Address:           "東京都中野区中野4-5-6",
			ManagementCompany: "中野ハウジング",
			FloorPlan:         "2LDK",
			Rent:              "168,000円",
		},
		{
			PropertyName:      "Maple Court Shibuya",
			RoomNumber:        "1102",
			Address:           "東京都渋谷区神南1-1-1",
			ManagementCompany: "Maple Realty",
			FloorPlan:         "1LDK",
			Rent:              "240,000円",
			Notes:             "ペット可",
		},
	}
}
