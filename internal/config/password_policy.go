// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// PasswordPolicy defines requirements for the admin password.
type PasswordPolicy struct {
	MinLength                int
	RequireUppercase         bool
	RequireLowercase         bool
	RequireDigit             bool
	RequireSpecial           bool
	MaxConsecutiveRepeats    int // 0 disables the check
	ForbidCommonPasswords    bool
	ForbidUsernameSimilarity bool
}

// DefaultPasswordPolicy returns the policy applied to ADMIN_PASSWORD.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:                12,
		RequireUppercase:         true,
		RequireLowercase:         true,
		RequireDigit:             true,
		RequireSpecial:           true,
		MaxConsecutiveRepeats:    3,
		ForbidCommonPasswords:    true,
		ForbidUsernameSimilarity: true,
	}
}

type charClasses struct {
	hasUpper   bool
	hasLower   bool
	hasDigit   bool
	hasSpecial bool
}

func analyzeCharClasses(password string) charClasses {
	var cc charClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			cc.hasUpper = true
		case unicode.IsLower(r):
			cc.hasLower = true
		case unicode.IsDigit(r):
			cc.hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			cc.hasSpecial = true
		}
	}
	return cc
}

func maxConsecutiveRepeats(password string) int {
	longest, run := 0, 0
	var last rune
	for i, r := range password {
		if i > 0 && r == last {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		last = r
	}
	return longest
}

// Violations returns every rule the password breaks.
func (p PasswordPolicy) Violations(password, username string) []string {
	var out []string

	if len(password) < p.MinLength {
		out = append(out, fmt.Sprintf("password must be at least %d characters (got %d)", p.MinLength, len(password)))
	}

	cc := analyzeCharClasses(password)
	if p.RequireUppercase && !cc.hasUpper {
		out = append(out, "password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !cc.hasLower {
		out = append(out, "password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !cc.hasDigit {
		out = append(out, "password must contain at least one digit")
	}
	if p.RequireSpecial && !cc.hasSpecial {
		out = append(out, "password must contain at least one special character")
	}

	if p.MaxConsecutiveRepeats > 0 && maxConsecutiveRepeats(password) > p.MaxConsecutiveRepeats {
		out = append(out, fmt.Sprintf("password cannot have more than %d consecutive repeated characters", p.MaxConsecutiveRepeats))
	}
	if p.ForbidCommonPasswords && commonPasswords[strings.ToLower(password)] {
		out = append(out, "password is too common and easily guessable")
	}
	if p.ForbidUsernameSimilarity && username != "" && isSimilarToUsername(password, username) {
		out = append(out, "password is too similar to username")
	}
	return out
}

// ValidateWithError returns the joined violations, or nil.
func (p PasswordPolicy) ValidateWithError(password, username string) error {
	if v := p.Violations(password, username); len(v) > 0 {
		return errors.New(strings.Join(v, "; "))
	}
	return nil
}

// commonPasswords holds breached passwords that satisfy the character rules
// on their own or after trivial edits.
var commonPasswords = map[string]bool{
	"password123!":   true,
	"p@ssw0rd1234":   true,
	"p@ssword1234":   true,
	"welcome@12345":  true,
	"admin@1234567":  true,
	"qwerty123456!":  true,
	"letmein12345!":  true,
	"changeme123!":   true,
	"administrator1": true,
	"botwatch123!":   true,
}

func isSimilarToUsername(password, username string) bool {
	lowerPass := strings.ToLower(password)
	lowerUser := strings.ToLower(username)

	if strings.Contains(lowerPass, lowerUser) || strings.Contains(lowerUser, lowerPass) {
		return true
	}

	substitutions := map[rune]rune{'a': '@', 'e': '3', 'i': '1', 'o': '0', 's': '$', 't': '7'}
	substituted := strings.Map(func(r rune) rune {
		if sub, ok := substitutions[r]; ok {
			return sub
		}
		return r
	}, lowerUser)
	return strings.Contains(lowerPass, substituted)
}
