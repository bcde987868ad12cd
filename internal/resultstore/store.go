// Package resultstore keeps verification verdicts and run summaries.
package resultstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// ErrNotFound is returned when a verdict id is unknown
var ErrNotFound = errors.New("verdict not found")

// StoredVerdict is a persisted verdict with its page id
type StoredVerdict struct {
	ID string `json:"id"`
	domain.FinalVerdict
	CreatedAt time.Time `json:"createdAt"`
}

// ListOptions specifies filters for listing verdicts
type ListOptions struct {
	Status   domain.FinalStatus
	Property string
	Limit    int
}

// Repository is the read and write surface shared by Store and MemoryPersister
type Repository interface {
	Persist(ctx context.Context, verdict domain.FinalVerdict) domain.PersistResult
	GetVerdict(ctx context.Context, id string) (*StoredVerdict, error)
	ListVerdicts(ctx context.Context, opts ListOptions) ([]StoredVerdict, error)
	SaveRun(ctx context.Context, run domain.RunSummary) error
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*MemoryPersister)(nil)
)

// Store provides SQLite-backed verdict persistence
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection: ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Persist stores verdict and reports the outcome in the persister format
func (s *Store) Persist(ctx context.Context, verdict domain.FinalVerdict) domain.PersistResult {
	id, err := s.SaveVerdict(ctx, verdict)
	if err != nil {
		return domain.PersistResult{Error: err.Error()}
	}
	return domain.PersistResult{Success: true, PageID: id, URL: VerdictURL(id)}
}

// VerdictURL is where the HTTP API serves a stored verdict
func VerdictURL(id string) string {
	return "/api/verdicts/" + id
}

// SaveVerdict inserts verdict and returns its new id
func (s *Store) SaveVerdict(ctx context.Context, verdict domain.FinalVerdict) (string, error) {
	results, err := json.Marshal(verdict.VerificationResults)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verdicts (id, property_name, room_number, address, management_company, final_status, site_results, notes, verified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		verdict.PropertyName,
		verdict.RoomNumber,
		verdict.Address,
		verdict.ManagementCompany,
		string(verdict.FinalStatus),
		string(results),
		verdict.Notes,
		verdict.LastVerified.UTC(),
		s.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("saving verdict: %w", err)
	}
	return id, nil
}

const verdictColumns = `id, property_name, room_number, address, management_company, final_status, site_results, notes, verified_at, created_at`

// GetVerdict retrieves a verdict by id
func (s *Store) GetVerdict(ctx context.Context, id string) (*StoredVerdict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+verdictColumns+` FROM verdicts WHERE id = ?`, id)
	v, err := scanVerdict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// ListVerdicts returns verdicts matching opts, newest first
func (s *Store) ListVerdicts(ctx context.Context, opts ListOptions) ([]StoredVerdict, error) {
	query := `SELECT ` + verdictColumns + ` FROM verdicts WHERE 1=1`
	var args []interface{}

	if opts.Status != "" {
		query += " AND final_status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.Property != "" {
		query += " AND property_name LIKE ?"
		args = append(args, "%"+opts.Property+"%")
	}

	query += " ORDER BY verified_at DESC, created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredVerdict
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// SaveRun inserts or updates a run summary
func (s *Store) SaveRun(ctx context.Context, run domain.RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, outcome, properties, completed, uploaded, uploads_failed, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome = excluded.outcome,
			completed = excluded.completed,
			uploaded = excluded.uploaded,
			uploads_failed = excluded.uploads_failed,
			message = excluded.message,
			finished_at = excluded.finished_at
	`,
		run.ID,
		string(run.Outcome),
		run.Properties,
		run.Completed,
		run.Uploaded,
		run.UploadsFailed,
		run.Message,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	)
	return err
}

// ListRuns returns the most recent run summaries, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, outcome, properties, completed, uploaded, uploads_failed, message, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var r domain.RunSummary
		var outcome string
		var message sql.NullString
		if err := rows.Scan(&r.ID, &outcome, &r.Properties, &r.Completed, &r.Uploaded, &r.UploadsFailed,
			&message, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Outcome = domain.RunOutcome(outcome)
		r.Message = message.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVerdict(row scanner) (*StoredVerdict, error) {
	var v StoredVerdict
	var status, results string
	var room, address, company, notes sql.NullString

	err := row.Scan(&v.ID, &v.PropertyName, &room, &address, &company, &status, &results, &notes, &v.LastVerified, &v.CreatedAt)
	if err != nil {
		return nil, err
	}

	v.RoomNumber = room.String
	v.Address = address.String
	v.ManagementCompany = company.String
	v.Notes = notes.String
	v.FinalStatus = domain.FinalStatus(status)

	if err := json.Unmarshal([]byte(results), &v.VerificationResults); err != nil {
		return nil, fmt.Errorf("decoding site results of %s: %w", v.ID, err)
	}
	return &v, nil
}
