package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// maxNameLength bounds names written below node_modules. npm itself caps new
// names at 214 but still serves older, longer ones.
const maxNameLength = 256

// ValidatePackageName checks that name can be used as a directory below
// node_modules without escaping it.
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "empty package name")
	}
	if len(name) > maxNameLength {
		return New(ErrCodeInvalidPackage, "package name longer than %d characters", maxNameLength)
	}
	if strings.ContainsFunc(name, unicode.IsControl) {
		return New(ErrCodeInvalidPackage, "package name %q has control characters", name)
	}
	for _, bad := range []string{"..", "//", "\\"} {
		if strings.Contains(name, bad) {
			return New(ErrCodeInvalidPackage, "package name %q contains %q", name, bad)
		}
	}
	return nil
}

// npmName matches the characters encodeURIComponent leaves alone. npm has
// always required names to be URL-safe; a scope adds one "@scope/" prefix.
var npmName = regexp.MustCompile(`^(@[A-Za-z0-9~!*'()-][A-Za-z0-9._~!*'()-]*/)?[A-Za-z0-9~!*'()-][A-Za-z0-9._~!*'()-]*$`)

// ValidateNpmPackageName checks name against the rules the registry enforces
// for existing packages. Uppercase letters are accepted: registry packages
// published before the lowercase rule keep their names.
func ValidateNpmPackageName(name string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}
	if strings.TrimSpace(name) != name {
		return New(ErrCodeInvalidPackage, "package name %q has surrounding spaces", name)
	}
	if name == "node_modules" || name == "favicon.ico" {
		return New(ErrCodeInvalidPackage, "package name %q is reserved", name)
	}
	if !npmName.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid npm package name %q", name)
	}
	return nil
}

// ValidatePath checks a local package path stored in a lock: relative to the
// lock, slash-separated and free of control characters. Leading ".." is
// fine since local packages often sit beside the project.
func ValidatePath(path string) error {
	const maxPathLength = 500
	switch {
	case path == "":
		return New(ErrCodeInvalidPath, "empty path")
	case len(path) > maxPathLength:
		return New(ErrCodeInvalidPath, "path longer than %d characters", maxPathLength)
	case strings.ContainsFunc(path, unicode.IsControl):
		return New(ErrCodeInvalidPath, "path %q has control characters", path)
	case strings.HasPrefix(path, "/"):
		return New(ErrCodeInvalidPath, "path %q is absolute", path)
	case strings.Contains(path, "\\"):
		return New(ErrCodeInvalidPath, "path %q uses backslashes", path)
	}
	return nil
}

// ValidateURL accepts http and https registry URLs.
func ValidateURL(rawURL string) error {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "registry URL %q must use http or https", rawURL)
	}
	return nil
}
