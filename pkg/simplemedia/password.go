package simplemedia

import (
	"fmt"
	"strings"
	"unicode"
)

// bcrypt ignores input past 72 bytes
const maxPasswordBytes = 72

// PasswordPolicy is the set of rules a new password must satisfy
type PasswordPolicy struct {
	MinLength     int
	MaxLength     int
	RequireLetter bool
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPasswordPolicy requires at least six characters with a letter and a digit
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     6,
		MaxLength:     maxPasswordBytes,
		RequireLetter: true,
		RequireDigit:  true,
	}
}

// Validate returns a ValidationError naming every rule password breaks
func (p PasswordPolicy) Validate(password string) error {
	maxLen := p.MaxLength
	if maxLen <= 0 || maxLen > maxPasswordBytes {
		maxLen = maxPasswordBytes
	}

	var problems []string
	if len([]rune(password)) < p.MinLength {
		problems = append(problems, fmt.Sprintf("at least %d characters", p.MinLength))
	}
	if len(password) > maxLen {
		problems = append(problems, fmt.Sprintf("at most %d bytes", maxLen))
	}

	var hasLetter, hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasLetter, hasUpper = true, true
		case unicode.IsLower(r):
			hasLetter, hasLower = true, true
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if p.RequireLetter && !hasLetter {
		problems = append(problems, "a letter")
	}
	if p.RequireUpper && !hasUpper {
		problems = append(problems, "an uppercase letter")
	}
	if p.RequireLower && !hasLower {
		problems = append(problems, "a lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		problems = append(problems, "a digit")
	}
	if p.RequireSymbol && !hasSymbol {
		problems = append(problems, "a symbol")
	}

	if len(problems) > 0 {
		return invalid("password", "must contain %s", strings.Join(problems, ", "))
	}
	return nil
}
