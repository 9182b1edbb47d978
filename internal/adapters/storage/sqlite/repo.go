package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/leadflow/internal/app"
	"github.com/hylla/leadflow/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// defaultActorID attributes ledger rows written by the local user.
const defaultActorID = "leadflow-user"

// Repository is the sqlite-backed record store.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the database file at path and applies migrations.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a shared in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS stages (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS leads (
			id TEXT PRIMARY KEY,
			stage_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			tags_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			stage_changed_at TEXT,
			FOREIGN KEY(stage_id) REFERENCES stages(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT 'leadflow-user',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_leads_stage_position ON leads(stage_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_created_at ON change_events(created_at DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateStage inserts a stage.
func (r *Repository) CreateStage(ctx context.Context, s domain.Stage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stages(id, name, color, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.Name, s.Color, s.Position, ts(s.CreatedAt), ts(s.UpdatedAt))
	return err
}

// UpdateStages writes every stage in one transaction and records one reorder
// event per stage whose position changed.
func (r *Repository) UpdateStages(ctx context.Context, stages []domain.Stage) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, s := range stages {
		var prevPosition int
		if err = tx.QueryRowContext(ctx, `SELECT position FROM stages WHERE id = ?`, s.ID).Scan(&prevPosition); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = app.ErrNotFound
			}
			return err
		}
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE stages SET name = ?, color = ?, position = ?, updated_at = ? WHERE id = ?
		`, s.Name, s.Color, s.Position, ts(s.UpdatedAt), s.ID)
		if err != nil {
			return err
		}
		if err = translateNoRows(res); err != nil {
			return err
		}
		if prevPosition == s.Position {
			continue
		}
		err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
			SubjectID: s.ID,
			Operation: domain.ChangeOperationReorder,
			Metadata: map[string]string{
				"from_position": strconv.Itoa(prevPosition),
				"to_position":   strconv.Itoa(s.Position),
			},
			OccurredAt: s.UpdatedAt,
		})
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// ListStages returns stages ordered by position.
func (r *Repository) ListStages(ctx context.Context) ([]domain.Stage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, color, position, created_at, updated_at
		FROM stages
		ORDER BY position ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Stage, 0)
	for rows.Next() {
		var (
			s          domain.Stage
			createdRaw string
			updatedRaw string
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Color, &s.Position, &createdRaw, &updatedRaw); err != nil {
			return nil, err
		}
		s.CreatedAt = parseTS(createdRaw)
		s.UpdatedAt = parseTS(updatedRaw)
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateLead inserts a lead and records a create event.
func (r *Repository) CreateLead(ctx context.Context, l domain.Lead) (err error) {
	tagsJSON, err := json.Marshal(nonNilTags(l.Tags))
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO leads(id, stage_id, position, name, email, phone, score, notes, owner, source, tags_json, created_at, updated_at, stage_changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID,
		l.StageID,
		l.Position,
		l.Name,
		l.Email,
		l.Phone,
		l.Score,
		l.Notes,
		l.Owner,
		l.Source,
		string(tagsJSON),
		ts(l.CreatedAt),
		ts(l.UpdatedAt),
		nullableTS(l.StageChangedAt),
	)
	if err != nil {
		return err
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		SubjectID: l.ID,
		Operation: domain.ChangeOperationCreate,
		ActorID:   l.Owner,
		Metadata: map[string]string{
			"stage_id": l.StageID,
			"position": strconv.Itoa(l.Position),
			"name":     l.Name,
		},
		OccurredAt: l.CreatedAt,
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// UpdateLeads writes every lead in one transaction. Each lead gets a move or
// update event depending on what changed.
func (r *Repository) UpdateLeads(ctx context.Context, leads []domain.Lead) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, l := range leads {
		var prev domain.Lead
		prev, err = getLeadByID(ctx, tx, l.ID)
		if err != nil {
			return err
		}
		var tagsJSON []byte
		tagsJSON, err = json.Marshal(nonNilTags(l.Tags))
		if err != nil {
			return err
		}
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE leads
			SET stage_id = ?, position = ?, name = ?, email = ?, phone = ?, score = ?, notes = ?, owner = ?, source = ?,
			    tags_json = ?, updated_at = ?, stage_changed_at = ?
			WHERE id = ?
		`,
			l.StageID,
			l.Position,
			l.Name,
			l.Email,
			l.Phone,
			l.Score,
			l.Notes,
			l.Owner,
			l.Source,
			string(tagsJSON),
			ts(l.UpdatedAt),
			nullableTS(l.StageChangedAt),
			l.ID,
		)
		if err != nil {
			return err
		}
		if err = translateNoRows(res); err != nil {
			return err
		}

		op, metadata := classifyLeadTransition(prev, l)
		err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
			SubjectID:  l.ID,
			Operation:  op,
			ActorID:    l.Owner,
			Metadata:   metadata,
			OccurredAt: l.UpdatedAt,
		})
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// GetLead returns one lead.
func (r *Repository) GetLead(ctx context.Context, id string) (domain.Lead, error) {
	return getLeadByID(ctx, r.db, id)
}

// ListLeads returns leads ordered by stage and position.
func (r *Repository) ListLeads(ctx context.Context) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		ORDER BY stage_id ASC, position ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLeads removes leads in one transaction and records a delete event for each.
func (r *Repository) DeleteLeads(ctx context.Context, ids []string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, id := range ids {
		var lead domain.Lead
		lead, err = getLeadByID(ctx, tx, id)
		if err != nil {
			return err
		}
		var res sql.Result
		res, err = tx.ExecContext(ctx, `DELETE FROM leads WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err = translateNoRows(res); err != nil {
			return err
		}
		err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
			SubjectID: lead.ID,
			Operation: domain.ChangeOperationDelete,
			ActorID:   lead.Owner,
			Metadata: map[string]string{
				"stage_id": lead.StageID,
				"position": strconv.Itoa(lead.Position),
				"name":     lead.Name,
			},
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// ListChangeEvents returns the newest change events first.
func (r *Repository) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subject_id, operation, actor_id, metadata_json, created_at
		FROM change_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.SubjectID, &opRaw, &event.ActorID, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Operation = normalizeChangeOperation(opRaw)
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// leadColumns lists the selected lead columns in scanLead order.
const leadColumns = `id, stage_id, position, name, email, phone, score, notes, owner, source, tags_json, created_at, updated_at, stage_changed_at`

// queryRower represents a query-only DB contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// getLeadByID returns one lead or app.ErrNotFound.
func getLeadByID(ctx context.Context, q queryRower, id string) (domain.Lead, error) {
	row := q.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Lead{}, app.ErrNotFound
	}
	return l, err
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// insertChangeEvent inserts a change-event ledger record.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(subject_id, operation, actor_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.SubjectID,
		string(event.Operation),
		chooseActorID(event.ActorID),
		string(metadataJSON),
		ts(normalizeEventTS(event.OccurredAt)),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// classifyLeadTransition derives the operation category and metadata for a lead update.
func classifyLeadTransition(prev, next domain.Lead) (domain.ChangeOperation, map[string]string) {
	if prev.StageID != next.StageID || prev.Position != next.Position {
		return domain.ChangeOperationMove, map[string]string{
			"from_stage_id": prev.StageID,
			"to_stage_id":   next.StageID,
			"from_position": strconv.Itoa(prev.Position),
			"to_position":   strconv.Itoa(next.Position),
		}
	}
	fields := changedLeadFields(prev, next)
	metadata := map[string]string{}
	if len(fields) > 0 {
		metadata["changed_fields"] = strings.Join(fields, ",")
	}
	return domain.ChangeOperationUpdate, metadata
}

// changedLeadFields lists changed record fields in a fixed order.
func changedLeadFields(prev, next domain.Lead) []string {
	changed := make([]string, 0)
	if prev.Name != next.Name {
		changed = append(changed, "name")
	}
	if prev.Email != next.Email {
		changed = append(changed, "email")
	}
	if prev.Phone != next.Phone {
		changed = append(changed, "phone")
	}
	if prev.Score != next.Score {
		changed = append(changed, "score")
	}
	if prev.Notes != next.Notes {
		changed = append(changed, "notes")
	}
	if prev.Owner != next.Owner {
		changed = append(changed, "owner")
	}
	if prev.Source != next.Source {
		changed = append(changed, "source")
	}
	if !slices.Equal(prev.Tags, next.Tags) {
		changed = append(changed, "tags")
	}
	return changed
}

// chooseActorID returns the first non-empty actor id or the default local actor.
func chooseActorID(candidates ...string) string {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" {
			return candidate
		}
	}
	return defaultActorID
}

// normalizeChangeOperation canonicalizes persisted operation values.
func normalizeChangeOperation(raw string) domain.ChangeOperation {
	switch op := domain.ChangeOperation(strings.TrimSpace(strings.ToLower(raw))); op {
	case domain.ChangeOperationCreate,
		domain.ChangeOperationUpdate,
		domain.ChangeOperationMove,
		domain.ChangeOperationReorder,
		domain.ChangeOperationDelete:
		return op
	default:
		return domain.ChangeOperationUpdate
	}
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanLead reads one row selected with leadColumns.
func scanLead(s scanner) (domain.Lead, error) {
	var (
		l            domain.Lead
		tagsRaw      string
		createdRaw   string
		updatedRaw   string
		stageChanged sql.NullString
	)
	if err := s.Scan(
		&l.ID,
		&l.StageID,
		&l.Position,
		&l.Name,
		&l.Email,
		&l.Phone,
		&l.Score,
		&l.Notes,
		&l.Owner,
		&l.Source,
		&tagsRaw,
		&createdRaw,
		&updatedRaw,
		&stageChanged,
	); err != nil {
		return domain.Lead{}, err
	}
	if strings.TrimSpace(tagsRaw) == "" {
		tagsRaw = "[]"
	}
	if err := json.Unmarshal([]byte(tagsRaw), &l.Tags); err != nil {
		return domain.Lead{}, fmt.Errorf("decode leads.tags_json: %w", err)
	}
	l.CreatedAt = parseTS(createdRaw)
	l.UpdatedAt = parseTS(updatedRaw)
	l.StageChangedAt = parseNullTS(stageChanged)
	return l, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
