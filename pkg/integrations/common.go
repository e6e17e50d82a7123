package integrations

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const httpTimeout = 30 * time.Second

var (
	// ErrNotFound is returned when a package or resource doesn't exist in the registry.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)

// NewHTTPClient creates an HTTP client with a standard timeout for registry requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// EscapePackageName encodes a package name for a registry path. Scoped
// names keep the "@" and encode the separator: "@babel/core" becomes
// "@babel%2fcore".
func EscapePackageName(name string) string {
	return strings.Replace(name, "/", "%2f", 1)
}

var repoURLReplacer = strings.NewReplacer(
	"git@github.com:", "https://github.com/",
	"git://github.com/", "https://github.com/",
	"github:", "https://github.com/",
)

// NormalizeRepoURL converts git dependency specs to an HTTPS repository URL.
// Handles git@, git://, github: and git+ prefixes, and strips a .git suffix
// and any #committish.
func NormalizeRepoURL(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.TrimSpace(raw)
	s, _, _ = strings.Cut(s, "#")
	s = strings.TrimPrefix(s, "git+")
	s = repoURLReplacer.Replace(s)
	return strings.TrimSuffix(s, ".git")
}
