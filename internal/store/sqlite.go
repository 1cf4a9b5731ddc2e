package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/citelens/citelens/internal/models"
	"github.com/citelens/citelens/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// Ensure SQLite implements Store
var _ Store = (*SQLite)(nil)

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite serializes writes; a single pooled connection avoids lock
	// contention and keeps in-memory databases on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateClient inserts a new client and populates its ID and CreatedAt.
func (s *SQLite) CreateClient(ctx context.Context, c *models.Client) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (name, industry, keywords, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Industry, strings.Join(c.Keywords, ","), boolToInt(c.IsActive), now,
	)
	if err != nil {
		return unavailable("insert client", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return unavailable("last insert id", err)
	}
	c.ID = id
	c.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetClient returns a single client by its ID.
func (s *SQLite) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, industry, keywords, is_active, created_at
		 FROM clients WHERE id = ?`, id,
	)
	return scanClient(row)
}

// ListClients returns all clients, optionally restricted to active ones.
func (s *SQLite) ListClients(ctx context.Context, activeOnly bool) ([]models.Client, error) {
	query := `SELECT id, name, industry, keywords, is_active, created_at FROM clients`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("query clients", err)
	}
	defer func() { _ = rows.Close() }()

	var clients []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// UpdateClient persists changes to an existing client.
func (s *SQLite) UpdateClient(ctx context.Context, c *models.Client) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE clients SET name = ?, industry = ?, keywords = ?, is_active = ? WHERE id = ?`,
		c.Name, c.Industry, strings.Join(c.Keywords, ","), boolToInt(c.IsActive), c.ID,
	)
	if err != nil {
		return unavailable("update client", err)
	}
	return nil
}

// CreateQuery inserts a new monitoring query and populates its ID and CreatedAt.
func (s *SQLite) CreateQuery(ctx context.Context, q *models.MonitoringQuery) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO monitoring_queries
		 (client_id, query_text, platforms, frequency, priority, is_active, last_checked, next_check, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ClientID, q.Text, strings.Join(q.Platforms, ","), string(q.Frequency), string(q.Priority),
		boolToInt(q.IsActive), formatNullableTime(q.LastChecked), formatNullableTime(q.NextCheck), now,
	)
	if err != nil {
		return unavailable("insert query", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return unavailable("last insert id", err)
	}
	q.ID = id
	q.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetQuery returns a single monitoring query by its ID.
func (s *SQLite) GetQuery(ctx context.Context, id int64) (*models.MonitoringQuery, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, query_text, platforms, frequency, priority, is_active, last_checked, next_check, created_at
		 FROM monitoring_queries WHERE id = ?`, id,
	)
	return scanQuery(row)
}

// ListQueriesByClient returns all monitoring queries belonging to a client.
func (s *SQLite) ListQueriesByClient(ctx context.Context, clientID int64) ([]models.MonitoringQuery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, query_text, platforms, frequency, priority, is_active, last_checked, next_check, created_at
		 FROM monitoring_queries WHERE client_id = ? ORDER BY id`, clientID,
	)
	if err != nil {
		return nil, unavailable("query queries", err)
	}
	defer func() { _ = rows.Close() }()
	return scanQueries(rows)
}

// ListDueQueries returns all active queries whose next check time has arrived
// or that have never been scheduled. Ordering is left to the scheduler policy.
func (s *SQLite) ListDueQueries(ctx context.Context, now time.Time) ([]models.MonitoringQuery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, query_text, platforms, frequency, priority, is_active, last_checked, next_check, created_at
		 FROM monitoring_queries
		 WHERE is_active = 1 AND (next_check IS NULL OR next_check <= ?)`,
		now.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, unavailable("query due queries", err)
	}
	defer func() { _ = rows.Close() }()
	return scanQueries(rows)
}

// UpdateQueryFrequency changes a query's frequency and next check time without
// touching any other column.
func (s *SQLite) UpdateQueryFrequency(ctx context.Context, queryID int64, f models.CheckFrequency, nextCheck time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitoring_queries SET frequency = ?, next_check = ? WHERE id = ?`,
		string(f), nextCheck.UTC().Format(timeLayout), queryID,
	)
	if err != nil {
		return unavailable("update frequency", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("rows affected", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetQueryActive flips a query's active flag without touching any other column.
func (s *SQLite) SetQueryActive(ctx context.Context, queryID int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitoring_queries SET is_active = ? WHERE id = ?`,
		boolToInt(active), queryID,
	)
	if err != nil {
		return unavailable("set active", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("rows affected", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceSchedule conditionally moves a query's checked/next-check timestamps
// forward. The update only applies when the stored last_checked predates the
// new one, so stale or duplicate observations never re-advance the schedule.
func (s *SQLite) AdvanceSchedule(ctx context.Context, queryID int64, lastChecked, nextCheck time.Time) (bool, error) {
	checked := lastChecked.UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitoring_queries
		 SET last_checked = ?, next_check = ?
		 WHERE id = ? AND (last_checked IS NULL OR last_checked < ?)`,
		checked, nextCheck.UTC().Format(timeLayout), queryID, checked,
	)
	if err != nil {
		return false, unavailable("advance schedule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("rows affected", err)
	}
	return n > 0, nil
}

// CreateCitation appends a citation event. Citations are never updated or deleted.
func (s *SQLite) CreateCitation(ctx context.Context, c *models.Citation) error {
	var sentiment *string
	if c.Sentiment != nil {
		v := string(*c.Sentiment)
		sentiment = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO citations (id, query_id, client_id, platform, position, sentiment, context, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.QueryID, c.ClientID, c.Platform, c.Position, sentiment, c.Context,
		c.DetectedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return unavailable("insert citation", err)
	}
	return nil
}

// ListCitationsByClient returns all citations for a client, oldest first.
func (s *SQLite) ListCitationsByClient(ctx context.Context, clientID int64) ([]models.Citation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query_id, client_id, platform, position, sentiment, context, detected_at
		 FROM citations WHERE client_id = ? ORDER BY detected_at, id`, clientID,
	)
	if err != nil {
		return nil, unavailable("query citations", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCitations(rows)
}

// ListCitationsByClientSince returns a client's citations detected at or after since.
func (s *SQLite) ListCitationsByClientSince(ctx context.Context, clientID int64, since time.Time) ([]models.Citation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query_id, client_id, platform, position, sentiment, context, detected_at
		 FROM citations WHERE client_id = ? AND detected_at >= ? ORDER BY detected_at, id`,
		clientID, since.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, unavailable("query citations since", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCitations(rows)
}

// CountCitationsByClientSince counts a client's citations detected at or after since.
func (s *SQLite) CountCitationsByClientSince(ctx context.Context, clientID int64, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM citations WHERE client_id = ? AND detected_at >= ?`,
		clientID, since.UTC().Format(timeLayout),
	).Scan(&count)
	if err != nil {
		return 0, unavailable("count citations", err)
	}
	return count, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanClient(row scannable) (*models.Client, error) {
	var c models.Client
	var keywords string
	var isActive int
	var created string
	err := row.Scan(&c.ID, &c.Name, &c.Industry, &keywords, &isActive, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("scan client", err)
	}
	c.Keywords = splitList(keywords)
	c.IsActive = isActive == 1
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	return &c, nil
}

func scanQuery(row scannable) (*models.MonitoringQuery, error) {
	var q models.MonitoringQuery
	var platforms, frequency, priority string
	var isActive int
	var lastChecked, nextCheck sql.NullString
	var created string
	err := row.Scan(&q.ID, &q.ClientID, &q.Text, &platforms, &frequency, &priority,
		&isActive, &lastChecked, &nextCheck, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("scan query", err)
	}
	q.Platforms = splitList(platforms)
	q.Frequency = models.CheckFrequency(frequency)
	q.Priority = models.QueryPriority(priority)
	q.IsActive = isActive == 1
	if lastChecked.Valid {
		t, _ := time.Parse(timeLayout, lastChecked.String)
		q.LastChecked = &t
	}
	if nextCheck.Valid {
		t, _ := time.Parse(timeLayout, nextCheck.String)
		q.NextCheck = &t
	}
	q.CreatedAt, _ = time.Parse(timeLayout, created)
	return &q, nil
}

func scanQueries(rows *sql.Rows) ([]models.MonitoringQuery, error) {
	var queries []models.MonitoringQuery
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		queries = append(queries, *q)
	}
	return queries, rows.Err()
}

func scanCitation(row scannable) (*models.Citation, error) {
	var c models.Citation
	var position sql.NullInt64
	var sentiment sql.NullString
	var detected string
	err := row.Scan(&c.ID, &c.QueryID, &c.ClientID, &c.Platform, &position, &sentiment, &c.Context, &detected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("scan citation", err)
	}
	if position.Valid {
		v := int(position.Int64)
		c.Position = &v
	}
	if sentiment.Valid {
		v := models.Sentiment(sentiment.String)
		c.Sentiment = &v
	}
	c.DetectedAt, _ = time.Parse(timeLayout, detected)
	return &c, nil
}

func scanCitations(rows *sql.Rows) ([]models.Citation, error) {
	var citations []models.Citation
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, err
		}
		citations = append(citations, *c)
	}
	return citations, rows.Err()
}
