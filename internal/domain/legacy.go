package domain

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LegacyUser es un registro de la tabla de usuarios de apit. Solo lectura.
type LegacyUser struct {
	ID                   int64
	LastLoginDate        time.Time
	EmailAddress         string
	EmailAddressNew      *string
	CommunityName        string
	PasswordSHA          string
	CreationDate         time.Time
	Locale               string
	DeactivationDate     *time.Time
	RoleAssignmentsJSON  *string
	StaffPageDescription StaffPageDescription
	Image                *LegacyImage
}

// LegacyImage es la imagen de perfil asociada a un LegacyUser.
type LegacyImage struct {
	ID       int64
	URL      *string
	MimeType string
}

// StaffPageDescription es el JSON multi-idioma de la pagina de staff.
type StaffPageDescription map[string]string

// DefaultStaffPageDescription se usa cuando la columna es NULL.
func DefaultStaffPageDescription() StaffPageDescription {
	return StaffPageDescription{"de": ""}
}

// German devuelve la entrada "de", o "" si no existe.
func (d StaffPageDescription) German() string {
	return d["de"]
}

// ParseStaffPageDescription decodifica la columna una sola vez, en el borde del store.
func ParseStaffPageDescription(raw *string) (StaffPageDescription, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return DefaultStaffPageDescription(), nil
	}
	var values map[string]interface{}
	if err := json.Unmarshal([]byte(*raw), &values); err != nil {
		return nil, fmt.Errorf("decode staff page description: %w", err)
	}
	desc := make(StaffPageDescription, len(values))
	for lang, v := range values {
		if s, ok := v.(string); ok {
			desc[lang] = s
		}
	}
	return desc, nil
}
