package service

import (
	"regexp"
	"strings"

	"github.com/elliotchance/phpserialize"
	"github.com/gosimple/slug"

	"wp-user-migration/internal/domain"
)

const (
	RoleSubscriber = "subscriber"
	RoleAuthor     = "author"

	deactivatedPrefix = "DA___"
)

var deactivatedSuffix = regexp.MustCompile(`_DA_\d*$`)

// UserFields son los valores de destino derivados de un LegacyUser.
type UserFields struct {
	Email        string
	Roles        []string
	Capabilities string
	FirstName    string
	LastName     string
	Description  string
	Slug         string
}

// TransformUser aplica las reglas de mapeo apit -> WordPress. No tiene efectos laterales.
func TransformUser(user domain.LegacyUser) (UserFields, error) {
	email := ResolveEmail(user)
	roles := MapRoles(user.RoleAssignmentsJSON)

	if IsDeactivated(user, email) {
		email = AnonymizeEmail(email)
		roles = nil
	}

	capabilities, err := SerializeCapabilities(roles)
	if err != nil {
		return UserFields{}, err
	}

	first, last := SplitName(user.CommunityName)
	return UserFields{
		Email:        email,
		Roles:        roles,
		Capabilities: capabilities,
		FirstName:    first,
		LastName:     last,
		Description:  user.StaffPageDescription.German(),
		Slug:         slug.Make(email),
	}, nil
}

// ResolveEmail prefiere emailAddressNew si existe.
func ResolveEmail(user domain.LegacyUser) string {
	if user.EmailAddressNew != nil {
		return *user.EmailAddressNew
	}
	return user.EmailAddress
}

// IsDeactivated: fecha de baja o email marcado con sufijo _DA_<n>.
func IsDeactivated(user domain.LegacyUser, email string) bool {
	return user.DeactivationDate != nil || deactivatedSuffix.MatchString(email)
}

// AnonymizeEmail quita el sufijo _DA_<n> y antepone DA___ para que el login quede inutilizable.
func AnonymizeEmail(email string) string {
	return deactivatedPrefix + deactivatedSuffix.ReplaceAllString(email, "")
}

// MapRoles: sin asignaciones -> subscriber; con cualquier asignacion -> author.
// TODO: traducir roleAssignmentsJson a roles de WordPress cuando exista la tabla de equivalencias.
func MapRoles(roleAssignmentsJSON *string) []string {
	if roleAssignmentsJSON == nil {
		return []string{RoleSubscriber}
	}
	return []string{RoleAuthor}
}

// SerializeCapabilities genera el valor de wp_capabilities: {primerRol: true} en formato PHP serialize.
func SerializeCapabilities(roles []string) (string, error) {
	if len(roles) == 0 {
		return "", nil
	}
	out, err := phpserialize.Marshal(map[interface{}]interface{}{roles[0]: true}, nil)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SplitName separa por espacios simples: primer token nombre, segundo apellido.
func SplitName(communityName string) (string, string) {
	parts := strings.Split(communityName, " ")
	if len(parts) > 1 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}
