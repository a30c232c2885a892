package capsules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/dbx"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
)

const capsuleColumns = `id, name, reveal_date, notify_on_create, owner_id, recipient_phone, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Capsule) (*models.Capsule, error) {
	query :=
		`INSERT INTO capsules (name, reveal_date, notify_on_create, owner_id, recipient_phone)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		c.Name, c.RevealDate.UTC(), c.NotifyOnCreate, c.OwnerID, c.RecipientPhone).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	c.RevealDate = c.RevealDate.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Capsule, error) {
	return r.getOne(ctx, `SELECT `+capsuleColumns+` FROM capsules WHERE id = $1`, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id int64) (*models.Capsule, error) {
	return r.getOne(ctx, `SELECT `+capsuleColumns+` FROM capsules WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) Update(ctx context.Context, c *models.Capsule) error {
	query :=
		`UPDATE capsules
		 SET name = $2, reveal_date = $3, notify_on_create = $4, recipient_phone = $5
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.RevealDate.UTC(), c.NotifyOnCreate, c.RecipientPhone)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM capsules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner, c *models.Capsule) error {
	if err := s.Scan(&c.ID, &c.Name, &c.RevealDate, &c.NotifyOnCreate, &c.OwnerID, &c.RecipientPhone, &c.CreatedAt); err != nil {
		return err
	}
	c.RevealDate = c.RevealDate.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, id int64) (*models.Capsule, error) {
	c := &models.Capsule{}
	if err := scan(r.db.QueryRowContext(ctx, query, id), c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
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
