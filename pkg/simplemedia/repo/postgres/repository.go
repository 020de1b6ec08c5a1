package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplemedia.UserRepository and
// simplemedia.ContentRepository using PostgreSQL
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// Ping checks the connection pool, if there is one
func (r *Repository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return nil
	}
	return r.pool.Ping(ctx)
}

// handlePostgresError maps driver errors onto simplemedia error kinds
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == "users_handle_key" {
				return simplemedia.ErrHandleTaken
			}
			return fmt.Errorf("%w: duplicate %s", simplemedia.ErrConflict, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return simplemedia.PersistenceFailure(operation, fmt.Errorf("referenced record not found (%s)", pgErr.ConstraintName))
		case "23502": // not_null_violation
			return simplemedia.PersistenceFailure(operation, fmt.Errorf("required field %s is missing", pgErr.ColumnName))
		case "42P01": // undefined_table
			return simplemedia.PersistenceFailure(operation, errors.New("table does not exist - database migration required"))
		default:
			return simplemedia.PersistenceFailure(operation, fmt.Errorf("%s (code: %s)", pgErr.Message, pgErr.Code))
		}
	}

	return simplemedia.PersistenceFailure(operation, err)
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *simplemedia.User) error {
	query := `
		INSERT INTO users (id, handle, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, query, user.ID, user.Handle, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return handlePostgresError("create user", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simplemedia.User, error) {
	query := `SELECT id, handle, password_hash, created_at FROM users WHERE id = $1`
	return r.getUser(ctx, query, id)
}

func (r *Repository) GetUserByHandle(ctx context.Context, handle string) (*simplemedia.User, error) {
	query := `SELECT id, handle, password_hash, created_at FROM users WHERE handle = $1`
	return r.getUser(ctx, query, handle)
}

func (r *Repository) getUser(ctx context.Context, query string, arg interface{}) (*simplemedia.User, error) {
	var user simplemedia.User
	err := r.db.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Handle, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemedia.ErrUserNotFound
		}
		return nil, handlePostgresError("get user", err)
	}
	return &user, nil
}

// Content operations

const contentColumns = `id, owner_id, title, description, content_type, duration,
	thumbnail_url, thumbnail_key, storage_key, mime_type, size_bytes, version,
	created_at, updated_at`

func scanContent(row pgx.Row) (*simplemedia.Content, error) {
	var c simplemedia.Content
	var contentType string
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Title, &c.Description, &contentType, &c.Duration,
		&c.ThumbnailURL, &c.ThumbnailKey, &c.StorageKey, &c.MimeType, &c.Size, &c.Version,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ContentType = simplemedia.ContentType(contentType)
	return &c, nil
}

func (r *Repository) CreateContent(ctx context.Context, content *simplemedia.Content) error {
	query := `
		INSERT INTO content (` + contentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.Exec(ctx, query,
		content.ID, content.OwnerID, content.Title, content.Description,
		string(content.ContentType), content.Duration,
		content.ThumbnailURL, content.ThumbnailKey, content.StorageKey,
		content.MimeType, content.Size, content.Version,
		content.CreatedAt, content.UpdatedAt)
	if err != nil {
		return handlePostgresError("create content", err)
	}
	return nil
}

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID) (*simplemedia.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM content WHERE id = $1`

	content, err := scanContent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemedia.ErrContentNotFound
		}
		return nil, handlePostgresError("get content", err)
	}
	return content, nil
}

// UpdateContent is a compare-and-swap on version
func (r *Repository) UpdateContent(ctx context.Context, content *simplemedia.Content, expectedVersion int) error {
	query := `
		UPDATE content SET
			title = $3, description = $4, content_type = $5, duration = $6,
			thumbnail_url = $7, thumbnail_key = $8, storage_key = $9,
			mime_type = $10, size_bytes = $11, updated_at = $12,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version`

	var version int
	err := r.db.QueryRow(ctx, query,
		content.ID, expectedVersion,
		content.Title, content.Description, string(content.ContentType), content.Duration,
		content.ThumbnailURL, content.ThumbnailKey, content.StorageKey,
		content.MimeType, content.Size, content.UpdatedAt,
	).Scan(&version)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return handlePostgresError("update content", err)
		}
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM content WHERE id = $1)`, content.ID).Scan(&exists); err != nil {
			return handlePostgresError("update content", err)
		}
		if exists {
			return simplemedia.ErrVersionConflict
		}
		return simplemedia.ErrContentNotFound
	}

	content.Version = version
	return nil
}

func (r *Repository) DeleteContent(ctx context.Context, id uuid.UUID) (*simplemedia.Content, error) {
	query := `DELETE FROM content WHERE id = $1 RETURNING ` + contentColumns

	content, err := scanContent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemedia.ErrContentNotFound
		}
		return nil, handlePostgresError("delete content", err)
	}
	return content, nil
}

func (r *Repository) ListContent(ctx context.Context, req simplemedia.ListContentRequest) ([]*simplemedia.Content, error) {
	var conditions []string
	var args []interface{}

	if req.OwnerID != nil {
		args = append(args, *req.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if req.ContentType != "" {
		args = append(args, string(req.ContentType))
		conditions = append(conditions, fmt.Sprintf("content_type = $%d", len(args)))
	}

	query := `SELECT ` + contentColumns + ` FROM content`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	args = append(args, req.Limit, req.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError("list content", err)
	}
	defer rows.Close()

	contents := []*simplemedia.Content{}
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, handlePostgresError("list content", err)
		}
		contents = append(contents, content)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list content", err)
	}
	return contents, nil
}
