package repository

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"

	"wp-user-migration/internal/domain"
)

// WPUserRepository define las escrituras sobre el esquema de WordPress.
type WPUserRepository interface {
	FindByLegacyID(ctx context.Context, legacyID int64) (domain.WPUser, error)
	Update(ctx context.Context, user domain.WPUser) error
	CreateWithMeta(ctx context.Context, user domain.WPUser, meta []domain.UserMeta) (int64, error)
	AddMeta(ctx context.Context, userID int64, meta domain.UserMeta) error
	SetMeta(ctx context.Context, userID int64, meta []domain.UserMeta) error
	FindAttachmentByLegacyImageID(ctx context.Context, imageID int64) (int64, error)
}

// PgWPUserRepository implementa WPUserRepository. Las tablas llevan el prefijo de WordPress.
type PgWPUserRepository struct {
	db     DBTX
	tables wpTables
}

func NewPgWPUserRepository(db DBTX, prefix string) *PgWPUserRepository {
	return &PgWPUserRepository{db: db, tables: newWPTables(prefix)}
}

// FindByLegacyID busca el usuario enlazado via usermeta legacy_user_id.
func (r *PgWPUserRepository) FindByLegacyID(ctx context.Context, legacyID int64) (domain.WPUser, error) {
	query := `
		SELECT u."ID", u.user_login, u.user_pass, u.user_nicename, u.user_email, u.user_url,
			u.user_registered, u.user_status, u.display_name, u.user_activation_key
		FROM ` + r.tables.users + ` u
		JOIN ` + r.tables.usermeta + ` m ON m.user_id = u."ID"
		WHERE m.meta_key = $1 AND m.meta_value = $2
		ORDER BY u."ID"
		LIMIT 1
	`
	var u domain.WPUser
	err := r.db.QueryRow(ctx, query, domain.MetaLegacyUserID, strconv.FormatInt(legacyID, 10)).Scan(
		&u.ID,
		&u.Login,
		&u.Pass,
		&u.Nicename,
		&u.Email,
		&u.URL,
		&u.Registered,
		&u.Status,
		&u.DisplayName,
		&u.ActivationKey,
	)
	if err != nil {
		return domain.WPUser{}, err
	}
	return u, nil
}

func (r *PgWPUserRepository) Update(ctx context.Context, user domain.WPUser) error {
	query := `
		UPDATE ` + r.tables.users + `
		SET user_login = $2, user_pass = $3, user_nicename = $4, user_email = $5, user_url = $6,
			user_registered = $7, user_status = $8, display_name = $9, user_activation_key = $10
		WHERE "ID" = $1
	`
	tag, err := r.db.Exec(ctx, query,
		user.ID,
		user.Login,
		user.Pass,
		user.Nicename,
		user.Email,
		user.URL,
		user.Registered,
		user.Status,
		user.DisplayName,
		user.ActivationKey,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CreateWithMeta inserta el usuario y su metadata en una unica transaccion.
func (r *PgWPUserRepository) CreateWithMeta(ctx context.Context, user domain.WPUser, meta []domain.UserMeta) (int64, error) {
	query := `
		INSERT INTO ` + r.tables.users + ` (user_login, user_pass, user_nicename, user_email, user_url,
			user_registered, user_status, display_name, user_activation_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING "ID"
	`
	var id int64
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query,
			user.Login,
			user.Pass,
			user.Nicename,
			user.Email,
			user.URL,
			user.Registered,
			user.Status,
			user.DisplayName,
			user.ActivationKey,
		).Scan(&id)
		if err != nil {
			return err
		}
		return r.insertMeta(ctx, tx, id, meta)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PgWPUserRepository) AddMeta(ctx context.Context, userID int64, meta domain.UserMeta) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		return r.insertMeta(ctx, tx, userID, []domain.UserMeta{meta})
	})
}

// SetMeta actualiza cada clave existente o la inserta si falta.
func (r *PgWPUserRepository) SetMeta(ctx context.Context, userID int64, meta []domain.UserMeta) error {
	update := `
		UPDATE ` + r.tables.usermeta + `
		SET meta_value = $3
		WHERE user_id = $1 AND meta_key = $2
	`
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		var missing []domain.UserMeta
		for _, m := range meta {
			tag, err := tx.Exec(ctx, update, userID, m.Key, m.Value)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				missing = append(missing, m)
			}
		}
		return r.insertMeta(ctx, tx, userID, missing)
	})
}

func (r *PgWPUserRepository) insertMeta(ctx context.Context, tx pgx.Tx, userID int64, meta []domain.UserMeta) error {
	if len(meta) == 0 {
		return nil
	}
	query := `
		INSERT INTO ` + r.tables.usermeta + ` (user_id, meta_key, meta_value)
		VALUES ($1, $2, $3)
	`
	batch := &pgx.Batch{}
	for _, m := range meta {
		batch.Queue(query, userID, m.Key, m.Value)
	}
	br := tx.SendBatch(ctx, batch)
	for range meta {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// FindAttachmentByLegacyImageID busca un adjunto ya importado para la imagen legacy.
func (r *PgWPUserRepository) FindAttachmentByLegacyImageID(ctx context.Context, imageID int64) (int64, error) {
	query := `
		SELECT post_id
		FROM ` + r.tables.postmeta + `
		WHERE meta_key = $1 AND meta_value = $2
		ORDER BY post_id
		LIMIT 1
	`
	var postID int64
	err := r.db.QueryRow(ctx, query, domain.MetaLegacyUserImageID, strconv.FormatInt(imageID, 10)).Scan(&postID)
	return postID, err
}

type wpTables struct {
	users    string
	usermeta string
	postmeta string
}

// newWPTables asume un prefijo ya validado por config (solo [A-Za-z0-9_]).
func newWPTables(prefix string) wpTables {
	return wpTables{
		users:    prefix + "users",
		usermeta: prefix + "usermeta",
		postmeta: prefix + "postmeta",
	}
}
