package storage

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/secure/precis"

	"videobox/internal/auth"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	maxFullNameLength = 128
)

// normalizeUsername applies the PRECIS UsernameCaseMapped profile, which folds
// case and rejects spaces and control characters.
func normalizeUsername(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", invalid("username is required")
	}
	normalized, err := precis.UsernameCaseMapped.String(trimmed)
	if err != nil {
		return "", invalid("username contains unsupported characters")
	}
	if strings.Contains(normalized, "@") {
		return "", invalid("username must not contain @")
	}
	length := utf8.RuneCountInString(normalized)
	if length < minUsernameLength || length > maxUsernameLength {
		return "", invalid("username must be between 3 and 32 characters")
	}
	return normalized, nil
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", invalid("email is required")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", invalid("email is invalid")
	}
	return trimmed, nil
}

func normalizeFullName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", invalid("full name is required")
	}
	if utf8.RuneCountInString(trimmed) > maxFullNameLength {
		return "", invalid("full name is too long")
	}
	return trimmed, nil
}

// identifierKeys returns the lookup keys for a login identifier: the lowered
// address form and, when valid, the normalized username.
func identifierKeys(identifier string) (email string, username string) {
	email = strings.ToLower(strings.TrimSpace(identifier))
	if normalized, err := precis.UsernameCaseMapped.String(strings.TrimSpace(identifier)); err == nil {
		username = normalized
	}
	return email, username
}

// validateCreateUser normalizes params and collects every validation problem.
func validateCreateUser(params CreateUserParams) (CreateUserParams, error) {
	var problems []string
	collect := func(err error) {
		var verr *ValidationError
		if errors.As(err, &verr) {
			problems = append(problems, verr.Problems...)
		}
	}

	username, err := normalizeUsername(params.Username)
	collect(err)
	email, err := normalizeEmail(params.Email)
	collect(err)
	fullName, err := normalizeFullName(params.FullName)
	collect(err)
	if err := auth.ValidatePassword(params.Password); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return CreateUserParams{}, invalid(problems...)
	}

	params.Username = username
	params.Email = email
	params.FullName = fullName
	params.Avatar = strings.TrimSpace(params.Avatar)
	params.CoverImage = strings.TrimSpace(params.CoverImage)
	return params, nil
}

func validateAccountUpdate(update AccountUpdate) (AccountUpdate, error) {
	if update.FullName == nil && update.Email == nil {
		return AccountUpdate{}, invalid("full name or email is required")
	}
	var normalized AccountUpdate
	if update.FullName != nil {
		fullName, err := normalizeFullName(*update.FullName)
		if err != nil {
			return AccountUpdate{}, err
		}
		normalized.FullName = &fullName
	}
	if update.Email != nil {
		email, err := normalizeEmail(*update.Email)
		if err != nil {
			return AccountUpdate{}, err
		}
		normalized.Email = &email
	}
	return normalized, nil
}
