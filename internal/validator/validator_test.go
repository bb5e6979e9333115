package validator_test

import (
	"fmt"
	"testing"

	"guildchat-backend/internal/validator"
)

func TestUsername(t *testing.T) {
	tests := []struct {
		name          string
		username      string
		expectedError error
	}{
		{
			name:          "Valid: Short name",
			username:      "ab",
			expectedError: nil,
		},
		{
			name:          "Valid: Name with separators",
			username:      "first.last_name-99",
			expectedError: nil,
		},
		{
			name:          "Valid: Maximum length (32 chars)",
			username:      "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			expectedError: nil,
		},
		{
			name:          "Error: Too short",
			username:      "a",
			expectedError: fmt.Errorf("short_username"),
		},
		{
			name:          "Error: Too long (33 chars)",
			username:      "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			expectedError: fmt.Errorf("long_username"),
		},
		{
			name:          "Error: Starts with separator",
			username:      ".user",
			expectedError: fmt.Errorf("bad_format"),
		},
		{
			name:          "Error: Ends with separator",
			username:      "user_",
			expectedError: fmt.Errorf("bad_format"),
		},
		{
			name:          "Error: Contains whitespace",
			username:      "some user",
			expectedError: fmt.Errorf("bad_format"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Username(tc.username)

			if tc.expectedError == nil {
				if err != nil {
					t.Errorf("Username(%q) failed unexpectedly: got error %v, want nil", tc.username, err)
				}
				return
			}

			if err == nil {
				t.Errorf("Username(%q) passed unexpectedly: got nil, want error %v", tc.username, tc.expectedError)
				return
			}

			if err.Error() != tc.expectedError.Error() {
				t.Errorf("Username(%q) got error %q, want error %q", tc.username, err.Error(), tc.expectedError.Error())
			}
		})
	}
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name          string
		password      string
		expectedError error
	}{
		{
			name:          "Valid: Minimum length",
			password:      "abcd",
			expectedError: nil,
		},
		{
			name:          "Valid: Typical password",
			password:      "P@sswOrd123!",
			expectedError: nil,
		},
		{
			name:          "Error: Too short",
			password:      "abc",
			expectedError: fmt.Errorf("short_password"),
		},
		{
			name:          "Error: Longer than bcrypt input limit",
			password:      string(make([]byte, 73)),
			expectedError: fmt.Errorf("long_password"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.Password(tc.password)

			if tc.expectedError == nil {
				if err != nil {
					t.Errorf("Password(%q) failed unexpectedly: got error %v, want nil", tc.password, err)
				}
				return
			}

			if err == nil {
				t.Errorf("Password(%q) passed unexpectedly: got nil, want error %v", tc.password, tc.expectedError)
				return
			}

			if err.Error() != tc.expectedError.Error() {
				t.Errorf("Password(%q) got error %q, want error %q", tc.password, err.Error(), tc.expectedError.Error())
			}
		})
	}
}

func TestRoleName(t *testing.T) {
	tests := []struct {
		name          string
		roleName      string
		expectedError error
	}{
		{
			name:          "Valid: Plain name",
			roleName:      "Moderator",
			expectedError: nil,
		},
		{
			name:          "Error: Empty",
			roleName:      "",
			expectedError: fmt.Errorf("empty_name"),
		},
		{
			name:          "Error: Too long (33 chars)",
			roleName:      "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			expectedError: fmt.Errorf("long_name"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.RoleName(tc.roleName)

			if tc.expectedError == nil {
				if err != nil {
					t.Errorf("RoleName(%q) failed unexpectedly: got error %v, want nil", tc.roleName, err)
				}
				return
			}

			if err == nil {
				t.Errorf("RoleName(%q) passed unexpectedly: got nil, want error %v", tc.roleName, tc.expectedError)
				return
			}

			if err.Error() != tc.expectedError.Error() {
				t.Errorf("RoleName(%q) got error %q, want error %q", tc.roleName, err.Error(), tc.expectedError.Error())
			}
		})
	}
}
