package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"wp-user-migration/internal/domain"
	"wp-user-migration/internal/media"
	"wp-user-migration/internal/repository"
)

// Outcome resume lo que paso con un registro.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeFailed    Outcome = "failed"
)

// RecordResult es el resultado de migrar un id legacy.
type RecordResult struct {
	LegacyID int64
	Outcome  Outcome
	WPUserID int64
	Err      error
}

var ErrLegacyUserNotFound = errors.New("legacy user not found")

// UserMigrator resuelve el upsert de un usuario legacy en WordPress.
type UserMigrator struct {
	logger      *zap.Logger
	sessions    repository.SessionFactory
	importer    media.Importer
	refreshMeta bool
}

// NewUserMigrator construye el migrador. refreshMeta reescribe la metadata derivada también en updates.
func NewUserMigrator(logger *zap.Logger, sessions repository.SessionFactory, importer media.Importer, refreshMeta bool) *UserMigrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if importer == nil {
		importer = media.NewDisabledImporter()
	}
	return &UserMigrator{
		logger:      logger,
		sessions:    sessions,
		importer:    importer,
		refreshMeta: refreshMeta,
	}
}

// MigrateUser abre una sesion propia, migra un unico id y libera las conexiones al terminar.
func (m *UserMigrator) MigrateUser(ctx context.Context, legacyID int64) RecordResult {
	sess, err := m.sessions.Open(ctx)
	if err != nil {
		return failed(legacyID, 0, err)
	}
	defer sess.Release()

	return m.handleUser(ctx, sess, legacyID)
}

func (m *UserMigrator) handleUser(ctx context.Context, sess repository.Session, legacyID int64) RecordResult {
	logger := m.logger.With(zap.Int64("legacy_user_id", legacyID))
	logger.Info("handle user")

	user, err := sess.LegacyUsers().GetByID(ctx, legacyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Error("legacy user not found", zap.Error(ErrLegacyUserNotFound))
			return RecordResult{LegacyID: legacyID, Outcome: OutcomeNotFound}
		}
		return failed(legacyID, 0, fmt.Errorf("load legacy user: %w", err))
	}

	fields, err := TransformUser(user)
	if err != nil {
		return failed(legacyID, 0, fmt.Errorf("transform: %w", err))
	}
	if IsDeactivated(user, ResolveEmail(user)) {
		logger.Info("deactivated user anonymized", zap.String("email", fields.Email))
	}

	target := domain.WPUser{
		Login:         fields.Email,
		Pass:          user.PasswordSHA,
		Nicename:      user.CommunityName,
		Email:         fields.Email,
		URL:           fields.Slug,
		Registered:    user.CreationDate,
		Status:        0,
		DisplayName:   user.CommunityName,
		ActivationKey: "",
	}
	wpUsers := sess.WPUsers()

	existing, err := wpUsers.FindByLegacyID(ctx, legacyID)
	switch {
	case err == nil:
		logger.Info("user exists", zap.Int64("wp_user_id", existing.ID))
		return m.updateUser(ctx, logger, wpUsers, user, fields, existing, target)
	case errors.Is(err, pgx.ErrNoRows):
		logger.Info("user does not exist")
		return m.createUser(ctx, logger, wpUsers, user, fields, target)
	default:
		return failed(legacyID, 0, fmt.Errorf("find wordpress user: %w", err))
	}
}

func (m *UserMigrator) updateUser(
	ctx context.Context,
	logger *zap.Logger,
	wpUsers repository.WPUserRepository,
	user domain.LegacyUser,
	fields UserFields,
	existing domain.WPUser,
	target domain.WPUser,
) RecordResult {
	target.ID = existing.ID
	outcome := OutcomeUnchanged

	if !existing.SameFields(target) {
		if err := wpUsers.Update(ctx, target); err != nil {
			return failed(user.ID, existing.ID, fmt.Errorf("update wordpress user: %w", err))
		}
		outcome = OutcomeUpdated
	}

	if m.refreshMeta {
		if err := wpUsers.SetMeta(ctx, existing.ID, profileMeta(user, fields)); err != nil {
			return failed(user.ID, existing.ID, fmt.Errorf("refresh meta: %w", err))
		}
		outcome = OutcomeUpdated
	}

	logger.Info("user synced", zap.String("outcome", string(outcome)))
	return RecordResult{LegacyID: user.ID, Outcome: outcome, WPUserID: existing.ID}
}

func (m *UserMigrator) createUser(
	ctx context.Context,
	logger *zap.Logger,
	wpUsers repository.WPUserRepository,
	user domain.LegacyUser,
	fields UserFields,
	target domain.WPUser,
) RecordResult {
	meta := append([]domain.UserMeta{
		{Key: domain.MetaLegacyUserID, Value: strconv.FormatInt(user.ID, 10)},
	}, profileMeta(user, fields)...)

	wpID, err := wpUsers.CreateWithMeta(ctx, target, meta)
	if err != nil {
		return failed(user.ID, 0, fmt.Errorf("create wordpress user: %w", err))
	}
	logger = logger.With(zap.Int64("wp_user_id", wpID))

	if err := m.attachAvatar(ctx, logger, wpUsers, user, wpID); err != nil {
		return failed(user.ID, wpID, fmt.Errorf("attach avatar: %w", err))
	}
	return RecordResult{LegacyID: user.ID, Outcome: OutcomeCreated, WPUserID: wpID}
}

// attachAvatar solo corre para usuarios recien creados.
func (m *UserMigrator) attachAvatar(ctx context.Context, logger *zap.Logger, wpUsers repository.WPUserRepository, user domain.LegacyUser, wpID int64) error {
	if user.Image == nil {
		logger.Info("user has no image")
		return nil
	}
	if user.Image.URL == nil {
		return nil
	}

	mediaID, err := wpUsers.FindAttachmentByLegacyImageID(ctx, user.Image.ID)
	switch {
	case err == nil:
		logger.Info("user image already imported", zap.Int64("media_id", mediaID))
	case errors.Is(err, pgx.ErrNoRows):
		mediaID, err = m.importer.CreateFromURL(ctx, *user.Image.URL, user.Image.MimeType, media.Properties{
			LegacyImageID: user.Image.ID,
			AuthorID:      wpID,
		})
		if errors.Is(err, media.ErrImporterDisabled) {
			logger.Warn("avatar import skipped", zap.Error(err))
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("user image imported", zap.Int64("media_id", mediaID))
	default:
		return err
	}

	return wpUsers.AddMeta(ctx, wpID, domain.UserMeta{
		Key:   domain.MetaUserAvatar,
		Value: strconv.FormatInt(mediaID, 10),
	})
}

// profileMeta es la metadata derivada del registro legacy (sin legacy_user_id ni avatar).
func profileMeta(user domain.LegacyUser, fields UserFields) []domain.UserMeta {
	return []domain.UserMeta{
		{Key: domain.MetaNickname, Value: fields.Email},
		{Key: domain.MetaFirstName, Value: fields.FirstName},
		{Key: domain.MetaLastName, Value: fields.LastName},
		{Key: domain.MetaLocale, Value: user.Locale},
		{Key: domain.MetaDescription, Value: fields.Description},
		{Key: domain.MetaCapabilities, Value: fields.Capabilities},
	}
}

func failed(legacyID, wpID int64, err error) RecordResult {
	return RecordResult{LegacyID: legacyID, Outcome: OutcomeFailed, WPUserID: wpID, Err: err}
}
