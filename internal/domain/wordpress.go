package domain

import "time"

// Claves de usermeta escritas por la migración.
const (
	MetaLegacyUserID      = "legacy_user_id"
	MetaNickname          = "nickname"
	MetaFirstName         = "first_name"
	MetaLastName          = "last_name"
	MetaLocale            = "locale"
	MetaDescription       = "description"
	MetaCapabilities      = "wp_capabilities"
	MetaUserAvatar        = "wp_user_avatar"
	MetaLegacyUserImageID = "legacy_userimage_id"
)

// WPUser es una fila de la tabla <prefix>users de WordPress.
type WPUser struct {
	ID            int64
	Login         string
	Pass          string
	Nicename      string
	Email         string
	URL           string
	Registered    time.Time
	Status        int
	DisplayName   string
	ActivationKey string
}

// SameFields indica si dos usuarios tienen los mismos valores migrables (ignora ID).
func (u WPUser) SameFields(o WPUser) bool {
	return u.Login == o.Login &&
		u.Pass == o.Pass &&
		u.Nicename == o.Nicename &&
		u.Email == o.Email &&
		u.URL == o.URL &&
		u.Registered.Equal(o.Registered) &&
		u.Status == o.Status &&
		u.DisplayName == o.DisplayName &&
		u.ActivationKey == o.ActivationKey
}

// UserMeta es un par clave/valor de <prefix>usermeta.
type UserMeta struct {
	Key   string
	Value string
}
