package usersync

import "strings"

// deriveFields maps a provider payload onto the stored fields.
// The display name never fails; an email is required because uniqueness hangs off it.
func deriveFields(p Payload) (Fields, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Fields{}, ErrMissingUserID
	}

	email := primaryEmail(p.EmailAddresses)
	if email == "" {
		return Fields{}, ErrMissingEmail
	}

	return Fields{
		DisplayName: displayName(p.FirstName, p.LastName),
		Email:       email,
		AvatarURL:   strings.TrimSpace(p.ImageURL),
	}, nil
}

func displayName(first, last *string) string {
	return strings.TrimSpace(deref(first) + " " + deref(last))
}

func primaryEmail(addresses []EmailAddress) string {
	if len(addresses) == 0 {
		return ""
	}
	return strings.TrimSpace(addresses[0].EmailAddress)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
