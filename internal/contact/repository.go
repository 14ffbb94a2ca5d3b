package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const contactColumns = `id, user_id, first_name, last_name, email, phone, birthday, extra_info, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, userID int64, input ContactInput) (Contact, error) {
	now := time.Now().UTC()

	var c Contact
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO contacts (user_id, first_name, last_name, email, phone, birthday, extra_info, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+contactColumns+`
	`, userID, input.FirstName, input.LastName, input.Email, input.Phone, input.Birthday, input.ExtraInfo, now).
		Scan(scanTargets(&c)...)
	if err != nil {
		return Contact{}, fmt.Errorf("insert contact: %w", err)
	}

	return c, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]Contact, error) {
	return r.queryContacts(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
}

func (r *Repository) GetByUser(ctx context.Context, userID, contactID int64) (Contact, error) {
	var c Contact
	err := r.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE id = $1 AND user_id = $2
	`, contactID, userID).Scan(scanTargets(&c)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("query contact: %w", err)
	}

	return c, nil
}

func (r *Repository) Update(ctx context.Context, userID, contactID int64, input ContactInput) (Contact, error) {
	var c Contact
	err := r.db.QueryRowContext(ctx, `
		UPDATE contacts
		SET first_name = $3, last_name = $4, email = $5, phone = $6, birthday = $7, extra_info = $8, updated_at = $9
		WHERE id = $1 AND user_id = $2
		RETURNING `+contactColumns+`
	`, contactID, userID, input.FirstName, input.LastName, input.Email, input.Phone, input.Birthday, input.ExtraInfo, time.Now().UTC()).
		Scan(scanTargets(&c)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("update contact: %w", err)
	}

	return c, nil
}

func (r *Repository) Delete(ctx context.Context, userID, contactID int64) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM contacts
		WHERE id = $1 AND user_id = $2
	`, contactID, userID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Search matches the query as a case-insensitive substring of the first name,
// last name or email, scoped to the owner.
func (r *Repository) Search(ctx context.Context, userID int64, query string) ([]Contact, error) {
	pattern := "%" + query + "%"
	return r.queryContacts(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE user_id = $1
		  AND (first_name ILIKE $2 OR last_name ILIKE $2 OR email ILIKE $2)
		ORDER BY created_at DESC
	`, userID, pattern)
}

func (r *Repository) queryContacts(ctx context.Context, query string, args ...any) ([]Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]Contact, 0)
	for rows.Next() {
		var c Contact
		if err := rows.Scan(scanTargets(&c)...); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}

	return contacts, nil
}

func scanTargets(c *Contact) []any {
	return []any{
		&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.Birthday, &c.ExtraInfo, &c.CreatedAt, &c.UpdatedAt,
	}
}

var ErrNotFound = errors.New("contact not found")
