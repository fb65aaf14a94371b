package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/dbx"
	"github.com/dmitrijs2005/contactsync/internal/models"
)

const columns = "id, first_name, last_name, phone_number, synced, soft_deleted, pending_change, edited_at"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(s scanner) (*models.Contact, error) {
	var (
		c        models.Contact
		pending  sql.NullString
		editedAt sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.FirstName, &c.LastName, &c.PhoneNumber,
		&c.Synced, &c.SoftDeleted, &pending, &editedAt); err != nil {
		return nil, err
	}
	if pending.Valid {
		c.PendingChange = models.PendingChange(pending.String)
	}
	if editedAt.Valid {
		t := models.Millis(editedAt.Time)
		c.EditedAt = &t
	}
	return &c, nil
}

func nullPending(p models.PendingChange) sql.NullString {
	return sql.NullString{String: string(p), Valid: p != models.PendingNone}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Insert stores c unless its id is taken, in which case ErrConflict is
// returned and nothing changes.
func (r *PostgresRepository) Insert(ctx context.Context, c *models.Contact) error {
	query := `
		INSERT INTO contacts (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		c.ID, c.FirstName, c.LastName, c.PhoneNumber, c.Synced, c.SoftDeleted,
		nullPending(c.PendingChange), nullTime(c.EditedAt))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("contact %s: %w", c.ID, common.ErrConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("contact %s: %w", c.ID, common.ErrConflict)
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	query := `SELECT ` + columns + ` FROM contacts WHERE id = $1`

	c, err := scanContact(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// ApplyUpdate issues one conditional UPDATE so that the timestamp comparison
// and the write cannot be separated by a concurrent update of the same row.
func (r *PostgresRepository) ApplyUpdate(ctx context.Context, id string, patch models.Patch, editedAt time.Time) (*models.Contact, bool, error) {
	b := psql.Update("contacts").
		Set("synced", false).
		Set("pending_change", string(models.PendingUpdated)).
		Set("edited_at", editedAt)
	if patch.FirstName != nil {
		b = b.Set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		b = b.Set("last_name", *patch.LastName)
	}
	if patch.PhoneNumber != nil {
		b = b.Set("phone_number", *patch.PhoneNumber)
	}
	b = b.Where(sq.Eq{"id": id}).
		Where(sq.Eq{"soft_deleted": false}).
		Where(sq.Or{sq.Eq{"edited_at": nil}, sq.Lt{"edited_at": editedAt}}).
		Suffix("RETURNING " + columns)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build update: %w", err)
	}

	c, err := scanContact(r.db.QueryRowContext(ctx, query, args...))
	switch {
	case err == nil:
		return c, true, nil
	case errors.Is(err, sql.ErrNoRows):
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	default:
		return nil, false, fmt.Errorf("db error: %w", err)
	}
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) (*models.Contact, error) {
	query := `
		UPDATE contacts
		SET soft_deleted = TRUE, synced = FALSE, pending_change = 'deleted'
		WHERE id = $1
		RETURNING ` + columns

	c, err := scanContact(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Acknowledge(ctx context.Context, id string, kind models.PendingChange) error {
	query := `
		UPDATE contacts
		SET synced = TRUE, pending_change = NULL
		WHERE id = $1 AND soft_deleted = FALSE
		  AND (pending_change IS NULL OR pending_change = $2)
	`
	res, err := r.db.ExecContext(ctx, query, id, string(kind))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n > 0 {
		return nil
	}

	// nothing cleared: either the id is unknown or the ack is stale
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM contacts WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM contacts WHERE id = $1 AND soft_deleted = TRUE`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListPending(ctx context.Context) ([]*models.Contact, error) {
	query := `SELECT ` + columns + ` FROM contacts WHERE synced = FALSE OR soft_deleted = TRUE ORDER BY id`
	return r.list(ctx, query)
}

func (r *PostgresRepository) ListVisible(ctx context.Context) ([]*models.Contact, error) {
	query := `SELECT ` + columns + ` FROM contacts WHERE soft_deleted = FALSE ORDER BY last_name, first_name, id`
	return r.list(ctx, query)
}

func (r *PostgresRepository) list(ctx context.Context, query string) ([]*models.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query)
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
