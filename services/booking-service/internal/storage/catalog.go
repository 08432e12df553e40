package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/studiobook/libs/db"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
)

const (
	staffColumns     = `id::text, studio_id::text, name, avatar_url, is_active, is_default`
	timeBlockColumns = `id::text, staff_id::text, name, duration_mins, color, is_active`
	tokenColumns     = `id::text, token, COALESCE(staff_id::text, ''), COALESCE(time_block_id::text, ''),
	client_name, phone, email, wechat, expires_at, used_at, created_at`
)

// CatalogRepository stores the studio's staff, their bookable time blocks and booking links.
type CatalogRepository struct {
	db db.Conn
}

func NewCatalogRepository(conn db.Conn) *CatalogRepository {
	return &CatalogRepository{db: conn}
}

// ListStaff returns staff ordered by name. activeOnly hides inactive staff and the template.
func (r *CatalogRepository) ListStaff(ctx context.Context, activeOnly bool) ([]model.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff`
	if activeOnly {
		query += ` WHERE is_active AND NOT is_default`
	}
	query += ` ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *CatalogRepository) GetStaff(ctx context.Context, id string) (model.Staff, error) {
	return scanStaff(r.db.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id))
}

// GetTemplateStaff returns the hidden staff record whose settings and time blocks seed new staff.
func (r *CatalogRepository) GetTemplateStaff(ctx context.Context) (model.Staff, error) {
	return scanStaff(r.db.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE is_default LIMIT 1`))
}

func (r *CatalogRepository) CreateStaff(ctx context.Context, q db.Conn, s *model.Staff) error {
	if q == nil {
		q = r.db
	}
	_, err := q.Exec(ctx, `
		INSERT INTO staff (id, studio_id, name, avatar_url, is_active, is_default)
		VALUES ($1, (SELECT id FROM studios ORDER BY created_at ASC LIMIT 1), $2, $3, $4, false)
	`, s.ID, s.Name, s.AvatarURL, s.IsActive)
	return err
}

func (r *CatalogRepository) UpdateStaff(ctx context.Context, s model.Staff) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE staff
		SET name = $2, avatar_url = $3, is_active = $4, updated_at = now()
		WHERE id = $1
	`, s.ID, s.Name, s.AvatarURL, s.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *CatalogRepository) ListTimeBlocks(ctx context.Context, q db.Conn, staffID string, activeOnly bool) ([]model.TimeBlock, error) {
	if q == nil {
		q = r.db
	}
	query := `SELECT ` + timeBlockColumns + ` FROM time_blocks WHERE staff_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY duration_mins ASC, name ASC`
	rows, err := q.Query(ctx, query, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimeBlock
	for rows.Next() {
		tb, err := scanTimeBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tb)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *CatalogRepository) GetTimeBlock(ctx context.Context, id string) (model.TimeBlock, error) {
	return scanTimeBlock(r.db.QueryRow(ctx, `SELECT `+timeBlockColumns+` FROM time_blocks WHERE id = $1`, id))
}

func (r *CatalogRepository) CreateTimeBlock(ctx context.Context, q db.Conn, tb model.TimeBlock) error {
	if q == nil {
		q = r.db
	}
	_, err := q.Exec(ctx, `
		INSERT INTO time_blocks (id, staff_id, name, duration_mins, color, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tb.ID, tb.StaffID, tb.Name, tb.DurationMins, tb.Color, tb.IsActive)
	return err
}

func (r *CatalogRepository) UpdateTimeBlock(ctx context.Context, q db.Conn, tb model.TimeBlock) error {
	if q == nil {
		q = r.db
	}
	tag, err := q.Exec(ctx, `
		UPDATE time_blocks
		SET name = $2, duration_mins = $3, color = $4, is_active = $5, updated_at = now()
		WHERE id = $1
	`, tb.ID, tb.Name, tb.DurationMins, tb.Color, tb.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *CatalogRepository) DeactivateTimeBlocks(ctx context.Context, q db.Conn, staffID string) error {
	if q == nil {
		q = r.db
	}
	_, err := q.Exec(ctx, `UPDATE time_blocks SET is_active = false, updated_at = now() WHERE staff_id = $1`, staffID)
	return err
}

func (r *CatalogRepository) DeleteTimeBlock(ctx context.Context, q db.Conn, id string) error {
	if q == nil {
		q = r.db
	}
	tag, err := q.Exec(ctx, `DELETE FROM time_blocks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *CatalogRepository) ListTokens(ctx context.Context, limit int) ([]model.BookingToken, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+tokenColumns+` FROM booking_tokens ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BookingToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *CatalogRepository) GetToken(ctx context.Context, q db.Conn, token string) (model.BookingToken, error) {
	if q == nil {
		q = r.db
	}
	return scanToken(q.QueryRow(ctx, `SELECT `+tokenColumns+` FROM booking_tokens WHERE token = $1`, token))
}

func (r *CatalogRepository) CreateToken(ctx context.Context, t *model.BookingToken) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO booking_tokens (id, token, staff_id, time_block_id, client_name, phone, email, wechat, expires_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, t.ID, t.Token, t.StaffID, t.TimeBlockID, t.ClientName, t.Phone, t.Email, t.Wechat, t.ExpiresAt).Scan(&t.CreatedAt)
}

// MarkTokenUsed stamps the token inside the booking transaction; it fails if
// another booking consumed it first.
func (r *CatalogRepository) MarkTokenUsed(ctx context.Context, tx pgx.Tx, token string, at time.Time) error {
	tag, err := tx.Exec(ctx, `UPDATE booking_tokens SET used_at = $2 WHERE token = $1 AND used_at IS NULL`, token, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *CatalogRepository) DeleteToken(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM booking_tokens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *CatalogRepository) GetAdminUser(ctx context.Context, username string) (model.AdminUser, error) {
	var u model.AdminUser
	err := r.db.QueryRow(ctx, `
		SELECT id::text, username, password_hash
		FROM admin_users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash)
	return u, err
}

// GetStudio returns the oldest studio row; the service runs a single studio.
func (r *CatalogRepository) GetStudio(ctx context.Context) (model.Studio, error) {
	var st model.Studio
	err := r.db.QueryRow(ctx, `
		SELECT id::text, name, logo_url, brand_color
		FROM studios
		ORDER BY created_at ASC
		LIMIT 1
	`).Scan(&st.ID, &st.Name, &st.LogoURL, &st.BrandColor)
	return st, err
}

// SaveStudio inserts st when it has no id yet and updates it otherwise.
func (r *CatalogRepository) SaveStudio(ctx context.Context, st *model.Studio) error {
	if st.ID == "" {
		return r.db.QueryRow(ctx, `
			INSERT INTO studios (name, logo_url, brand_color)
			VALUES ($1, $2, $3)
			RETURNING id::text
		`, st.Name, st.LogoURL, st.BrandColor).Scan(&st.ID)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE studios
		SET name = $2, logo_url = $3, brand_color = $4, updated_at = now()
		WHERE id = $1
	`, st.ID, st.Name, st.LogoURL, st.BrandColor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanStaff(row pgx.Row) (model.Staff, error) {
	var s model.Staff
	err := row.Scan(&s.ID, &s.StudioID, &s.Name, &s.AvatarURL, &s.IsActive, &s.IsDefault)
	return s, err
}

func scanTimeBlock(row pgx.Row) (model.TimeBlock, error) {
	var tb model.TimeBlock
	err := row.Scan(&tb.ID, &tb.StaffID, &tb.Name, &tb.DurationMins, &tb.Color, &tb.IsActive)
	return tb, err
}

func scanToken(row pgx.Row) (model.BookingToken, error) {
	var t model.BookingToken
	var expiresAt, usedAt *time.Time
	err := row.Scan(&t.ID, &t.Token, &t.StaffID, &t.TimeBlockID, &t.ClientName, &t.Phone, &t.Email, &t.Wechat,
		&expiresAt, &usedAt, &t.CreatedAt)
	if err != nil {
		return model.BookingToken{}, err
	}
	t.ExpiresAt = expiresAt
	t.UsedAt = usedAt
	return t, nil
}
