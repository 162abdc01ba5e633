// Package validate checks that names, branch names, and URLs are safe to hand
// to the external git process. Every value that originates from user input or
// stored configuration passes through here before git sees it.
package validate

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	maxNameLen = 255
	maxURLLen  = 2000

	// FallbackBranch is substituted when a configured branch name fails validation.
	FallbackBranch = "main"
)

var (
	namePattern   = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	branchPattern = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

	urlPrefixes = []string{
		"https://",
		"http://",
		"git@",
		"ssh://",
		"git://",
		"file://",
	}

	// Characters that could break out of a command line or smuggle in a
	// second command. URLs never legitimately contain these.
	urlForbidden = " \t\n\r;|&$`<>(){}'\"\\"
)

// IsValidName reports whether s is usable as a skill or remote name:
// 1-255 characters from [A-Za-z0-9._-].
func IsValidName(s string) bool {
	return len(s) >= 1 && len(s) <= maxNameLen && namePattern.MatchString(s)
}

// IsValidBranch reports whether s is usable as a branch name:
// 1-255 characters from [A-Za-z0-9._/-].
func IsValidBranch(s string) bool {
	return len(s) >= 1 && len(s) <= maxNameLen && branchPattern.MatchString(s)
}

// IsValidRemoteURL reports whether s looks like a git remote URL: one of the
// accepted scheme prefixes, no shell metacharacters, at most 2000 characters.
func IsValidRemoteURL(s string) bool {
	if len(s) == 0 || len(s) > maxURLLen {
		return false
	}
	if strings.ContainsAny(s, urlForbidden) {
		return false
	}
	for _, prefix := range urlPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// SanitizeBranch returns s unchanged when it is a valid branch name, and
// FallbackBranch otherwise. The warn callback receives a message when the
// fallback is taken; pass nil to sanitize silently.
func SanitizeBranch(s string, warn func(string)) string {
	if IsValidBranch(s) {
		return s
	}
	if warn != nil {
		warn("invalid branch name " + strconvQuote(s) + ", falling back to " + FallbackBranch)
	}
	return FallbackBranch
}

// EscapeForCommand makes s safe to embed inside a double-quoted argument of a
// shell command line: backslashes and double quotes are escaped, newlines,
// carriage returns, and NUL bytes are stripped, and tabs collapse to spaces.
// Git invocations in this codebase use argument arrays and do not need this;
// it protects the shell snippets we print for the operator to run.
func EscapeForCommand(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n', '\r', 0:
			// dropped
		case '\t':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CheckName returns a descriptive error when name is not a valid identifier.
func CheckName(name string) error {
	if !IsValidName(name) {
		return errors.Errorf("invalid name %q: must be 1-255 characters of letters, digits, '.', '_', or '-'", name)
	}
	return nil
}

// CheckRemoteURL returns a descriptive error when url is not an acceptable remote URL.
func CheckRemoteURL(url string) error {
	if !IsValidRemoteURL(url) {
		return errors.Errorf("invalid remote URL %q: must start with one of %s and contain no shell metacharacters", url, strings.Join(urlPrefixes, ", "))
	}
	return nil
}

func strconvQuote(s string) string {
	return `"` + EscapeForCommand(s) + `"`
}
