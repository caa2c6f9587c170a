package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/hyperterse/hypercluster/core/domain"
	"github.com/hyperterse/hypercluster/core/logger"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	thumbnail  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const postgresColumns = "id, title, price, thumbnail"

// PostgresStore keeps products in PostgreSQL using a pgx/v5 pool shared by
// every request of the worker.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool on connectionString and makes sure the
// products table exists.
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	log := logger.New("store:postgres")
	log.Debugf("Opening PostgreSQL connection pool (pgx/v5)")

	poolConfig, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create products table: %w", err)
	}

	log.Debugf("PostgreSQL connection pool opened successfully")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetAll(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+postgresColumns+" FROM products ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Product])
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}
	return products, nil
}

func (s *PostgresStore) Save(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	p := domain.Product{ID: ulid.Make().String(), Title: in.Title, Price: in.Price, Thumbnail: in.Thumbnail}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO products (id, title, price, thumbnail) VALUES ($1, $2, $3, $4)",
		p.ID, p.Title, p.Price, p.Thumbnail)
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to insert product: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (domain.Product, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+postgresColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to get product: %w", err)
	}
	return collectOne(rows)
}

func (s *PostgresStore) UpdateByID(ctx context.Context, id string, in domain.ProductInput) (domain.Product, error) {
	rows, err := s.pool.Query(ctx,
		"UPDATE products SET title = $2, price = $3, thumbnail = $4 WHERE id = $1 RETURNING "+postgresColumns,
		id, in.Title, in.Price, in.Thumbnail)
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to update product: %w", err)
	}
	return collectOne(rows)
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		logger.New("store:postgres").Debugf("Closing PostgreSQL connection pool")
		s.pool.Close()
	}
	return nil
}

func collectOne(rows pgx.Rows) (domain.Product, error) {
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[domain.Product])
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to scan product: %w", err)
	}
	return p, nil
}
