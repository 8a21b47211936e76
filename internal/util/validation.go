package util

import (
	"regexp"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,32}$`)

// IsValidUsername accepts 1-32 characters of letters, digits, dot, dash and
// underscore. The server's own author name is reserved.
func IsValidUsername(s string) bool {
	return s != "Server" && usernameRegex.MatchString(s)
}

const MaxPasswordBytes = 72

// IsValidPassword enforces bcrypt's input limit.
func IsValidPassword(s string) bool {
	return s != "" && len(s) <= MaxPasswordBytes
}
