package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/agentpipe/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer: the webhook server and the CLI can share one database file.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Runs ---

const runColumns = `id, repo, issue_number, status, stage, reason, plan_source, pr_number, pr_url, started_at, finished_at`

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = newULID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Repo, run.IssueNumber, string(run.Status), run.Stage, run.Reason,
		string(run.PlanSource), run.PRNumber, run.PRURL, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunListFilter) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Repo != "" {
		query += " AND repo = ?"
		args = append(args, filter.Repo)
	}
	if filter.IssueNumber > 0 {
		query += " AND issue_number = ?"
		args = append(args, filter.IssueNumber)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.Run) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status=?, stage=?, reason=?, plan_source=?, pr_number=?, pr_url=?, finished_at=?
		WHERE id=?`,
		string(run.Status), run.Stage, run.Reason, string(run.PlanSource),
		run.PRNumber, run.PRURL, run.FinishedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run not found: %s", run.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	run := &models.Run{}
	var status, source string
	var finishedAt sql.NullTime
	err := row.Scan(&run.ID, &run.Repo, &run.IssueNumber, &status, &run.Stage, &run.Reason,
		&source, &run.PRNumber, &run.PRURL, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.PlanSource = models.PlanSource(source)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

// --- Claims ---

// Claim records runID as the owner of issueKey. It returns false when
// another run already holds the claim.
func (s *SQLiteStore) Claim(ctx context.Context, issueKey, runID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (issue_key, run_id, claimed_at) VALUES (?, ?, ?)
		ON CONFLICT(issue_key) DO NOTHING`,
		issueKey, runID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", issueKey, err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// ReleaseClaim drops the claim on issueKey. Releasing an absent claim is not an error.
func (s *SQLiteStore) ReleaseClaim(ctx context.Context, issueKey string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM claims WHERE issue_key = ?", issueKey); err != nil {
		return fmt.Errorf("release claim %s: %w", issueKey, err)
	}
	return nil
}

// --- Evaluations ---

func (s *SQLiteStore) CreateEvaluation(ctx context.Context, rec *models.EvaluationRecord) error {
	if rec.ID == "" {
		rec.ID = newULID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, repo, pr_number, total_score, approved, confidence, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Repo, rec.PRNumber, rec.TotalScore, boolToInt(rec.Approved), rec.Confidence, rec.Report, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create evaluation: %w", err)
	}
	return nil
}

// ListEvaluations returns evaluations newest first. Zero values widen the filter.
func (s *SQLiteStore) ListEvaluations(ctx context.Context, repo string, prNumber int) ([]*models.EvaluationRecord, error) {
	query := `SELECT id, repo, pr_number, total_score, approved, confidence, report, created_at FROM evaluations WHERE 1=1`
	var args []any
	if repo != "" {
		query += " AND repo = ?"
		args = append(args, repo)
	}
	if prNumber > 0 {
		query += " AND pr_number = ?"
		args = append(args, prNumber)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []*models.EvaluationRecord
	for rows.Next() {
		r := &models.EvaluationRecord{}
		if err := rows.Scan(&r.ID, &r.Repo, &r.PRNumber, &r.TotalScore, &r.Approved, &r.Confidence, &r.Report, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
