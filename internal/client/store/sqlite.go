// Package store is the client Record Store: the durable SQLite copy of the
// contact list together with the sync-control fields the Sync Engine drives.
//
// Every read-modify-write on a record is a single statement or runs inside one
// transaction, so the flush pass, the backlog pull and the event handlers can
// interleave freely.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/dbx"
	"github.com/dmitrijs2005/contactsync/internal/models"
)

const columns = "id, first_name, last_name, phone_number, synced, soft_deleted, pending_change, edited_at"

// SQLiteStore implements the Record Store on SQLite.
type SQLiteStore struct {
	db *sql.DB

	subsMu sync.Mutex
	subs   map[chan []*models.Contact]struct{}
}

// New returns a store over an already migrated database.
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:   db,
		subs: make(map[chan []*models.Contact]struct{}),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(s scanner) (*models.Contact, error) {
	var (
		c        models.Contact
		pending  sql.NullString
		editedAt sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.FirstName, &c.LastName, &c.PhoneNumber,
		&c.Synced, &c.SoftDeleted, &pending, &editedAt); err != nil {
		return nil, err
	}
	if pending.Valid {
		c.PendingChange = models.PendingChange(pending.String)
	}
	if editedAt.Valid {
		t := time.UnixMilli(editedAt.Int64).UTC()
		c.EditedAt = &t
	}
	return &c, nil
}

func nullPending(p models.PendingChange) sql.NullString {
	return sql.NullString{String: string(p), Valid: p != models.PendingNone}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func args(c *models.Contact) []any {
	return []any{c.ID, c.FirstName, c.LastName, c.PhoneNumber, c.Synced, c.SoftDeleted,
		nullPending(c.PendingChange), nullMillis(c.EditedAt)}
}

// Insert stores a new record. A taken id yields common.ErrConflict.
func (s *SQLiteStore) Insert(ctx context.Context, c *models.Contact) error {
	query := `INSERT INTO contacts (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`
	n, err := s.exec(ctx, query, args(c)...)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("contact %s: %w", c.ID, common.ErrConflict)
		}
		return fmt.Errorf("failed to insert contact: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("contact %s: %w", c.ID, common.ErrConflict)
	}
	return nil
}

// Upsert writes every column of c, inserting the row if needed.
func (s *SQLiteStore) Upsert(ctx context.Context, c *models.Contact) error {
	query := `INSERT INTO contacts (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone_number = excluded.phone_number,
			synced = excluded.synced,
			soft_deleted = excluded.soft_deleted,
			pending_change = excluded.pending_change,
			edited_at = excluded.edited_at`
	if _, err := s.exec(ctx, query, args(c)...); err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

// ApplyRemote stores a record received from the server as synced. It does not
// overwrite a local row whose editedAt is strictly newer, nor a row that is
// pending deletion. change is the kind of change c carries: an update without
// editedAt still replaces a synced row, but never a pending local edit. The
// result reports whether the row was written.
func (s *SQLiteStore) ApplyRemote(ctx context.Context, c *models.Contact, change models.PendingChange) (bool, error) {
	query := `INSERT INTO contacts (` + columns + `) VALUES (?, ?, ?, ?, 1, 0, NULL, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone_number = excluded.phone_number,
			synced = 1,
			pending_change = NULL,
			edited_at = excluded.edited_at
		WHERE contacts.soft_deleted = 0
		  AND (contacts.edited_at IS NULL
		       OR (excluded.edited_at IS NOT NULL AND excluded.edited_at >= contacts.edited_at)
		       OR (excluded.edited_at IS NULL AND contacts.synced = 1 AND ?))`
	untimedUpdate := c.EditedAt == nil && change == models.PendingUpdated
	n, err := s.exec(ctx, query, c.ID, c.FirstName, c.LastName, c.PhoneNumber, nullMillis(c.EditedAt), untimedUpdate)
	if err != nil {
		return false, fmt.Errorf("failed to apply remote contact: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	return getByID(ctx, s.db, id)
}

func getByID(ctx context.Context, db dbx.DBTX, id string) (*models.Contact, error) {
	query := `SELECT ` + columns + ` FROM contacts WHERE id = ?`
	c, err := scanContact(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return c, nil
}

// ListVisible returns the records that are not soft-deleted.
func (s *SQLiteStore) ListVisible(ctx context.Context) ([]*models.Contact, error) {
	return s.list(ctx, `SELECT `+columns+` FROM contacts WHERE soft_deleted = 0 ORDER BY last_name, first_name, id`)
}

// ListNeedingSync returns the records with synced = false or soft_deleted =
// true, oldest first.
func (s *SQLiteStore) ListNeedingSync(ctx context.Context) ([]*models.Contact, error) {
	return s.list(ctx, `SELECT `+columns+` FROM contacts WHERE synced = 0 OR soft_deleted = 1 ORDER BY rowid`)
}

func (s *SQLiteStore) list(ctx context.Context, query string) ([]*models.Contact, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select contacts: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkSynced sets synced and clears the pending change.
func (s *SQLiteStore) MarkSynced(ctx context.Context, id string) error {
	return s.mustChange(ctx, id, `UPDATE contacts SET synced = 1, pending_change = NULL WHERE id = ?`, id)
}

// SoftDelete sets soft_deleted and clears synced, leaving other fields.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id string) error {
	return s.mustChange(ctx, id, `UPDATE contacts SET soft_deleted = 1, synced = 0 WHERE id = ?`, id)
}

// MarkDeleted is the user-facing delete: a soft delete that also records the
// pending deletion owed to the server.
func (s *SQLiteStore) MarkDeleted(ctx context.Context, id string) error {
	return s.mustChange(ctx, id,
		`UPDATE contacts SET soft_deleted = 1, synced = 0, pending_change = 'deleted' WHERE id = ?`, id)
}

// HardDelete physically removes the row.
func (s *SQLiteStore) HardDelete(ctx context.Context, id string) error {
	return s.mustChange(ctx, id, `DELETE FROM contacts WHERE id = ?`, id)
}

// SetPendingChange records the operation owed to the server; PendingNone
// stores NULL.
func (s *SQLiteStore) SetPendingChange(ctx context.Context, id string, p models.PendingChange) error {
	return s.mustChange(ctx, id, `UPDATE contacts SET pending_change = ? WHERE id = ?`, nullPending(p), id)
}

// Edit applies patch to a visible record, stamps it with editedAt and marks
// it as an update owed to the server.
func (s *SQLiteStore) Edit(ctx context.Context, id string, patch models.Patch, editedAt time.Time) (*models.Contact, error) {
	var c *models.Contact
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		current, err := getByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.SoftDeleted {
			return fmt.Errorf("contact %s: %w", id, common.ErrNotFound)
		}

		patch.Apply(current)
		t := models.Millis(editedAt)
		current.EditedAt = &t
		current.Synced = false
		current.PendingChange = models.PendingUpdated

		query := `UPDATE contacts
			SET first_name = ?, last_name = ?, phone_number = ?, synced = 0, pending_change = ?, edited_at = ?
			WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, current.FirstName, current.LastName, current.PhoneNumber,
			nullPending(current.PendingChange), nullMillis(current.EditedAt), id); err != nil {
			return fmt.Errorf("failed to update contact: %w", err)
		}
		c = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx)
	return c, nil
}

// ConfirmRemote completes a push: the pending row takes the server's copy c
// and is marked synced. Nothing is inserted, a row deleted meanwhile is left
// alone, and a row edited again after the push (a newer editedAt than c's)
// stays pending.
func (s *SQLiteStore) ConfirmRemote(ctx context.Context, c *models.Contact) (bool, error) {
	at := nullMillis(c.EditedAt)
	query := `UPDATE contacts
		SET first_name = ?, last_name = ?, phone_number = ?, synced = 1, pending_change = NULL, edited_at = ?
		WHERE id = ? AND soft_deleted = 0
		  AND (edited_at IS NULL OR (? IS NOT NULL AND ? >= edited_at))`
	n, err := s.exec(ctx, query, c.FirstName, c.LastName, c.PhoneNumber, at, c.ID, at, at)
	if err != nil {
		return false, fmt.Errorf("failed to confirm contact: %w", err)
	}
	return n > 0, nil
}

// ConfirmDeleted removes a record once the server has accepted its deletion.
// Rows that are not soft-deleted are left alone.
func (s *SQLiteStore) ConfirmDeleted(ctx context.Context, id string) (bool, error) {
	n, err := s.exec(ctx, `DELETE FROM contacts WHERE id = ? AND soft_deleted = 1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete contact: %w", err)
	}
	return n > 0, nil
}

// mustChange runs a single-row mutation and reports common.ErrNotFound when
// no row matched.
func (s *SQLiteStore) mustChange(ctx context.Context, id, query string, args ...any) error {
	n, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("contact %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// exec runs a mutation and notifies subscribers when it changed anything.
func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	if n > 0 {
		s.publish(ctx)
	}
	return n, nil
}
