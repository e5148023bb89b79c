package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"wp-user-migration/internal/domain"
)

// LegacyUserRepository define las lecturas sobre la base apit.
type LegacyUserRepository interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
	ListIDsSince(ctx context.Context, since time.Time, offset, limit int) ([]int64, error)
	GetByID(ctx context.Context, id int64) (domain.LegacyUser, error)
}

// PgLegacyUserRepository implementa LegacyUserRepository con pgx.
type PgLegacyUserRepository struct {
	db DBTX
}

func NewPgLegacyUserRepository(db DBTX) *PgLegacyUserRepository {
	return &PgLegacyUserRepository{db: db}
}

func (r *PgLegacyUserRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(id)
		FROM users
		WHERE last_login_date >= $1
	`
	var n int
	err := r.db.QueryRow(ctx, query, since).Scan(&n)
	return n, err
}

// ListIDsSince devuelve una pagina de ids, ultimo login mas reciente primero.
// El id desempata para que el orden sea estable entre paginas.
func (r *PgLegacyUserRepository) ListIDsSince(ctx context.Context, since time.Time, offset, limit int) ([]int64, error) {
	const query = `
		SELECT id
		FROM users
		WHERE last_login_date >= $1
		ORDER BY last_login_date DESC, id DESC
		OFFSET $2
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, since, offset, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *PgLegacyUserRepository) GetByID(ctx context.Context, id int64) (domain.LegacyUser, error) {
	const query = `
		SELECT u.id, u.last_login_date, u.email_address, u.email_address_new,
			COALESCE(u.community_name, ''), COALESCE(u.password_sha, ''), u.creation_date,
			COALESCE(u.locale, ''), u.deactivation_date, u.role_assignments_json,
			u.staff_page_description_json, i.id, i.url, COALESCE(i.mime_type, '')
		FROM users u
		LEFT JOIN user_images i ON i.id = u.image_id
		WHERE u.id = $1
	`
	var (
		u           domain.LegacyUser
		description *string
		imageID     *int64
		imageURL    *string
		imageMime   string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.LastLoginDate,
		&u.EmailAddress,
		&u.EmailAddressNew,
		&u.CommunityName,
		&u.PasswordSHA,
		&u.CreationDate,
		&u.Locale,
		&u.DeactivationDate,
		&u.RoleAssignmentsJSON,
		&description,
		&imageID,
		&imageURL,
		&imageMime,
	)
	if err != nil {
		return domain.LegacyUser{}, err
	}

	u.StaffPageDescription, err = domain.ParseStaffPageDescription(description)
	if err != nil {
		return domain.LegacyUser{}, err
	}
	if imageID != nil {
		u.Image = &domain.LegacyImage{ID: *imageID, URL: imageURL, MimeType: imageMime}
	}
	return u, nil
}
