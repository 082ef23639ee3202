// Package useremail checks that a packager identifies with an individual
// company mailbox.
package useremail

import (
	"regexp"
	"strings"
)

const allowedDomain = "@buyersclub.com.au"

var (
	blocked = map[string]bool{
		"properties@buyersclub.com.au": true,
		"packaging@buyersclub.com.au":  true,
	}
	emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Result is the outcome of Validate. Email is the normalized address when Valid.
type Result struct {
	Valid bool   `json:"isValid"`
	Email string `json:"email,omitempty"`
	Error string `json:"error,omitempty"`
}

func Validate(email string) Result {
	normalized := strings.ToLower(strings.TrimSpace(email))
	switch {
	case normalized == "":
		return Result{Error: "Email address is required"}
	case blocked[normalized]:
		return Result{Error: "Shared email accounts (Properties@ or Packaging@) are not allowed. Please use your individual @buyersclub.com.au email address."}
	case !strings.HasSuffix(normalized, allowedDomain):
		return Result{Error: "Only @buyersclub.com.au email addresses are allowed."}
	case !emailShape.MatchString(normalized):
		return Result{Error: "Invalid email format"}
	}
	return Result{Valid: true, Email: normalized}
}
