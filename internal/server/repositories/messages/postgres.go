package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/dbx"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
)

const messageColumns = `id, capsule_id, creator_id, text, filename, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Message) (*models.Message, error) {
	query :=
		`INSERT INTO messages (capsule_id, creator_id, text, filename)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, m.CapsuleID, m.CreatorID, nullString(m.Text), nullString(m.Filename)).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (r *PostgresRepository) Get(ctx context.Context, capsuleID, messageID int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1 AND capsule_id = $2`

	m, err := scan(r.db.QueryRowContext(ctx, query, messageID, capsuleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) ListByCapsule(ctx context.Context, capsuleID int64) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE capsule_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, capsuleID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	items := make([]*models.Message, 0)
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}

func (r *PostgresRepository) Update(ctx context.Context, m *models.Message) error {
	query :=
		`UPDATE messages
		 SET text = $3, filename = $4
		 WHERE id = $1 AND capsule_id = $2`

	res, err := r.db.ExecContext(ctx, query, m.ID, m.CapsuleID, nullString(m.Text), nullString(m.Filename))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, capsuleID, messageID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1 AND capsule_id = $2`, messageID, capsuleID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) FilenamesByCapsule(ctx context.Context, capsuleID int64) ([]string, error) {
	query := `SELECT filename FROM messages WHERE capsule_id = $1 AND filename IS NOT NULL ORDER BY id`
	return r.filenames(ctx, query, capsuleID)
}

func (r *PostgresRepository) FilenamesByUser(ctx context.Context, userID int64) ([]string, error) {
	query :=
		`SELECT m.filename
		 FROM messages m
		 JOIN capsules c ON c.id = m.capsule_id
		 WHERE m.filename IS NOT NULL AND (m.creator_id = $1 OR c.owner_id = $1)
		 ORDER BY m.id`
	return r.filenames(ctx, query, userID)
}

func (r *PostgresRepository) filenames(ctx context.Context, query string, id int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return names, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Message, error) {
	m := &models.Message{}
	var text, filename sql.NullString
	if err := s.Scan(&m.ID, &m.CapsuleID, &m.CreatorID, &text, &filename, &m.CreatedAt); err != nil {
		return nil, err
	}
	if text.Valid {
		m.Text = &text.String
	}
	if filename.Valid {
		m.Filename = &filename.String
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
