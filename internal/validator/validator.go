package validator

import (
	"fmt"
	"regexp"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)

func Username(username string) error {
	length := len(username)
	if length < 2 {
		return fmt.Errorf("short_username")
	} else if length > 32 {
		return fmt.Errorf("long_username")
	}

	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("bad_format")
	}

	return nil
}

func Password(password string) error {
	length := len(password)
	if length < 4 {
		return fmt.Errorf("short_password")
	} else if length > 72 {
		// bcrypt truncates input beyond 72 bytes
		return fmt.Errorf("long_password")
	}

	return nil
}

func RoleName(name string) error {
	length := len(name)
	if length == 0 {
		return fmt.Errorf("empty_name")
	} else if length > 32 {
		return fmt.Errorf("long_name")
	}

	return nil
}
