// Package store implements the persistence interfaces on SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stroudgreenmedical/medicinealerts/internal/core"
	"github.com/stroudgreenmedical/medicinealerts/internal/persistence"
)

// Store is the SQLite-backed database
type Store struct {
	db   *sql.DB
	path string
}

var _ persistence.Database = (*Store)(nil)

// NewStore opens (creating if necessary) the SQLite database at dbPath
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	alertsTable := `
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_id TEXT NOT NULL,
		govuk_reference TEXT,
		content_id TEXT NOT NULL UNIQUE,
		url TEXT,
		title TEXT,
		published_date DATETIME,
		issued_date DATETIME,
		alert_type TEXT,
		message_type TEXT,
		medical_specialties TEXT,
		category TEXT,
		severity TEXT,
		priority TEXT,
		auto_relevance TEXT,
		final_relevance TEXT,
		relevance_reason TEXT,
		product_name TEXT,
		active_ingredient TEXT,
		manufacturer TEXT,
		batch_numbers TEXT,
		expiry_dates TEXT,
		therapeutic_area TEXT,
		status TEXT,
		assigned_to TEXT,
		date_first_reviewed DATETIME,
		action_required TEXT,
		emis_search_terms TEXT,
		emis_search_completed INTEGER DEFAULT 0,
		emis_search_date DATETIME,
		emis_search_reason TEXT,
		patients_affected INTEGER,
		emergency_drugs_check INTEGER DEFAULT 0,
		emergency_drugs_affected TEXT,
		practice_team_notified INTEGER DEFAULT 0,
		practice_team_notified_date DATETIME,
		team_notification_method TEXT,
		patients_contacted TEXT,
		contact_method TEXT,
		medication_stopped INTEGER DEFAULT 0,
		medication_stopped_date DATETIME,
		medication_not_stopped_reason TEXT,
		patient_harm_assessed INTEGER DEFAULT 0,
		patient_harm_occurred INTEGER DEFAULT 0,
		harm_severity TEXT,
		patient_harm_details TEXT,
		action_completed_date DATETIME,
		time_to_first_review REAL,
		time_to_completion REAL,
		notes TEXT,
		is_duplicate INTEGER DEFAULT 0,
		primary_alert_id TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		data_source TEXT,
		source_urls TEXT,
		backfilled INTEGER DEFAULT 0,
		notified INTEGER DEFAULT 0,
		notified_at DATETIME
	);`

	feedStatesTable := `
	CREATE TABLE IF NOT EXISTS feed_states (
		url TEXT PRIMARY KEY,
		last_modified TEXT,
		etag TEXT,
		last_polled DATETIME
	);`

	statusIndex := `CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);`
	publishedIndex := `CREATE INDEX IF NOT EXISTS idx_alerts_published ON alerts(published_date);`

	for _, stmt := range []string{alertsTable, feedStatesTable, statusIndex, publishedIndex} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Alerts returns the alert repository
func (s *Store) Alerts() persistence.AlertRepository {
	return &alertRepo{db: s.db}
}

// FeedStates returns the feed state repository
func (s *Store) FeedStates() persistence.FeedStateRepository {
	return &feedStateRepo{db: s.db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// alertColumns lists every column except the rowid, in the order used by
// both the insert placeholders and scanAlert.
const alertColumns = `alert_id, govuk_reference, content_id, url, title,
	published_date, issued_date, alert_type, message_type, medical_specialties,
	category, severity, priority, auto_relevance, final_relevance, relevance_reason,
	product_name, active_ingredient, manufacturer, batch_numbers, expiry_dates, therapeutic_area,
	status, assigned_to, date_first_reviewed, action_required,
	emis_search_terms, emis_search_completed, emis_search_date, emis_search_reason, patients_affected,
	emergency_drugs_check, emergency_drugs_affected,
	practice_team_notified, practice_team_notified_date, team_notification_method,
	patients_contacted, contact_method,
	medication_stopped, medication_stopped_date, medication_not_stopped_reason,
	patient_harm_assessed, patient_harm_occurred, harm_severity, patient_harm_details,
	action_completed_date, time_to_first_review, time_to_completion, notes,
	is_duplicate, primary_alert_id, created_at, updated_at,
	data_source, source_urls, backfilled, notified, notified_at`

const alertColumnCount = 58

type alertRepo struct {
	db *sql.DB
}

func (r *alertRepo) Create(ctx context.Context, alert *core.Alert) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", alertColumnCount), ", ")
	query := fmt.Sprintf("INSERT INTO alerts (%s) VALUES (%s)", alertColumns, placeholders)

	result, err := r.db.ExecContext(ctx, query, alertArgs(alert)...)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.ContentID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		alert.ID = id
	}
	return nil
}

func (r *alertRepo) GetByContentID(ctx context.Context, contentID string) (*core.Alert, error) {
	return r.getOne(ctx, "content_id", contentID)
}

func (r *alertRepo) GetByAlertID(ctx context.Context, alertID string) (*core.Alert, error) {
	return r.getOne(ctx, "alert_id", alertID)
}

func (r *alertRepo) getOne(ctx context.Context, column, value string) (*core.Alert, error) {
	query := fmt.Sprintf("SELECT id, %s FROM alerts WHERE %s = ?", alertColumns, column)
	row := r.db.QueryRowContext(ctx, query, value)

	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert by %s: %w", column, err)
	}
	return alert, nil
}

func (r *alertRepo) Update(ctx context.Context, alert *core.Alert) error {
	assignments := make([]string, 0, alertColumnCount)
	for _, column := range strings.Split(alertColumns, ",") {
		assignments = append(assignments, strings.TrimSpace(column)+" = ?")
	}
	query := fmt.Sprintf("UPDATE alerts SET %s WHERE id = ?", strings.Join(assignments, ", "))

	args := append(alertArgs(alert), alert.ID)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alert.ContentID, err)
	}
	return nil
}

// allowed filter and sort columns for List
var listColumns = map[string]string{
	"status":          "status",
	"priority":        "priority",
	"severity":        "severity",
	"category":        "category",
	"final_relevance": "final_relevance",
	"auto_relevance":  "auto_relevance",
	"data_source":     "data_source",
	"published_date":  "published_date",
	"created_at":      "created_at",
}

func (r *alertRepo) List(ctx context.Context, opts persistence.ListOptions) ([]core.Alert, error) {
	query := fmt.Sprintf("SELECT id, %s FROM alerts", alertColumns)
	var args []any

	var clauses []string
	for key, value := range opts.Filter {
		column, ok := listColumns[key]
		if !ok {
			return nil, fmt.Errorf("unsupported filter column %q", key)
		}
		clauses = append(clauses, column+" = ?")
		args = append(args, value)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	sortBy := "created_at"
	if opts.SortBy != "" {
		column, ok := listColumns[opts.SortBy]
		if !ok {
			return nil, fmt.Errorf("unsupported sort column %q", opts.SortBy)
		}
		sortBy = column
	}
	order := "DESC"
	if strings.EqualFold(opts.Order, "asc") {
		order = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, order)

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	return r.queryAlerts(ctx, query, args...)
}

func (r *alertRepo) ListOpen(ctx context.Context) ([]core.Alert, error) {
	query := fmt.Sprintf(
		"SELECT id, %s FROM alerts WHERE status IN (?, ?) ORDER BY created_at ASC",
		alertColumns)
	return r.queryAlerts(ctx, query, string(core.StatusNew), string(core.StatusActionRequired))
}

func (r *alertRepo) CountByStatus(ctx context.Context) (map[core.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM alerts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[core.Status(status)] = count
	}
	return counts, rows.Err()
}

func (r *alertRepo) queryAlerts(ctx context.Context, query string, args ...any) ([]core.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []core.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// alertArgs produces the insert/update arguments in alertColumns order
func alertArgs(a *core.Alert) []any {
	sourceURLs, _ := json.Marshal(a.SourceURLs)

	return []any{
		a.AlertID, a.GovUKReference, a.ContentID, a.URL, a.Title,
		nullTime(a.PublishedDate), nullTime(a.IssuedDate), a.AlertType, a.MessageType, a.MedicalSpecialties,
		string(a.Category), string(a.Severity), string(a.Priority), string(a.AutoRelevance), string(a.FinalRelevance), a.RelevanceReason,
		a.ProductName, a.ActiveIngredient, a.Manufacturer, a.BatchNumbers, a.ExpiryDates, a.TherapeuticArea,
		string(a.Status), a.AssignedTo, nullTime(a.DateFirstReviewed), a.ActionRequired,
		a.EMISSearchTerms, a.EMISSearchCompleted, nullTime(a.EMISSearchDate), a.EMISSearchReason, nullInt(a.PatientsAffected),
		a.EmergencyDrugsCheck, a.EmergencyDrugsAffected,
		a.PracticeTeamNotified, nullTime(a.PracticeTeamNotifiedDate), a.TeamNotificationMethod,
		a.PatientsContacted, a.ContactMethod,
		a.MedicationStopped, nullTime(a.MedicationStoppedDate), a.MedicationNotStoppedReason,
		a.PatientHarmAssessed, a.PatientHarmOccurred, a.HarmSeverity, a.PatientHarmDetails,
		nullTime(a.ActionCompletedDate), nullFloat(a.TimeToFirstReview), nullFloat(a.TimeToCompletion), a.Notes,
		a.IsDuplicate, a.PrimaryAlertID, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
		a.DataSource, string(sourceURLs), a.Backfilled, a.Notified, nullTime(a.NotifiedAt),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAlert reads one row in "id, alertColumns" order
func scanAlert(row rowScanner) (*core.Alert, error) {
	var a core.Alert
	var published, issued, firstReviewed, emisDate, teamNotifiedDate sql.NullTime
	var medStoppedDate, completedDate, notifiedAt sql.NullTime
	var ttfr, ttc sql.NullFloat64
	var patientsAffected sql.NullInt64
	var category, severity, priority, autoRelevance, finalRelevance, status string
	var sourceURLs string

	err := row.Scan(
		&a.ID,
		&a.AlertID, &a.GovUKReference, &a.ContentID, &a.URL, &a.Title,
		&published, &issued, &a.AlertType, &a.MessageType, &a.MedicalSpecialties,
		&category, &severity, &priority, &autoRelevance, &finalRelevance, &a.RelevanceReason,
		&a.ProductName, &a.ActiveIngredient, &a.Manufacturer, &a.BatchNumbers, &a.ExpiryDates, &a.TherapeuticArea,
		&status, &a.AssignedTo, &firstReviewed, &a.ActionRequired,
		&a.EMISSearchTerms, &a.EMISSearchCompleted, &emisDate, &a.EMISSearchReason, &patientsAffected,
		&a.EmergencyDrugsCheck, &a.EmergencyDrugsAffected,
		&a.PracticeTeamNotified, &teamNotifiedDate, &a.TeamNotificationMethod,
		&a.PatientsContacted, &a.ContactMethod,
		&a.MedicationStopped, &medStoppedDate, &a.MedicationNotStoppedReason,
		&a.PatientHarmAssessed, &a.PatientHarmOccurred, &a.HarmSeverity, &a.PatientHarmDetails,
		&completedDate, &ttfr, &ttc, &a.Notes,
		&a.IsDuplicate, &a.PrimaryAlertID, &a.CreatedAt, &a.UpdatedAt,
		&a.DataSource, &sourceURLs, &a.Backfilled, &a.Notified, &notifiedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Category = core.Category(category)
	a.Severity = core.Severity(severity)
	a.Priority = core.Priority(priority)
	a.AutoRelevance = core.Relevance(autoRelevance)
	a.FinalRelevance = core.FinalRelevance(finalRelevance)
	a.Status = core.Status(status)

	a.PublishedDate = timePtr(published)
	a.IssuedDate = timePtr(issued)
	a.DateFirstReviewed = timePtr(firstReviewed)
	a.EMISSearchDate = timePtr(emisDate)
	a.PracticeTeamNotifiedDate = timePtr(teamNotifiedDate)
	a.MedicationStoppedDate = timePtr(medStoppedDate)
	a.ActionCompletedDate = timePtr(completedDate)
	a.NotifiedAt = timePtr(notifiedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	if ttfr.Valid {
		v := ttfr.Float64
		a.TimeToFirstReview = &v
	}
	if ttc.Valid {
		v := ttc.Float64
		a.TimeToCompletion = &v
	}
	if patientsAffected.Valid {
		v := int(patientsAffected.Int64)
		a.PatientsAffected = &v
	}
	if sourceURLs != "" {
		_ = json.Unmarshal([]byte(sourceURLs), &a.SourceURLs)
	}

	return &a, nil
}

type feedStateRepo struct {
	db *sql.DB
}

func (r *feedStateRepo) Get(ctx context.Context, url string) (*core.FeedState, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT url, last_modified, etag, last_polled FROM feed_states WHERE url = ?", url)

	var state core.FeedState
	err := row.Scan(&state.URL, &state.LastModified, &state.ETag, &state.LastPolled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feed state: %w", err)
	}
	state.LastPolled = state.LastPolled.UTC()
	return &state, nil
}

func (r *feedStateRepo) Upsert(ctx context.Context, state *core.FeedState) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO feed_states (url, last_modified, etag, last_polled)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		last_modified = excluded.last_modified,
		etag = excluded.etag,
		last_polled = excluded.last_polled`,
		state.URL, state.LastModified, state.ETag, state.LastPolled.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert feed state: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}
