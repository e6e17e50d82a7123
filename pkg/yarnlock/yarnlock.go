// Package yarnlock reads yarn.lock files into a "name@semver" → version
// table.
//
// Both formats are supported: the classic v1 format, which looks like YAML
// but is not, and the berry (v2+) format, which is YAML with a __metadata
// entry. Berry's "npm:" protocol prefix is stripped so keys match the
// semvers written in package.json.
package yarnlock

import (
	"bufio"
	"bytes"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/fyn/pkg/errors"
)

// DefaultFile is yarn's lock file name.
const DefaultFile = "yarn.lock"

// Lock is a parsed yarn.lock.
type Lock struct {
	entries map[string]string
}

// Lookup returns the version yarn locked for name@semver.
func (l *Lock) Lookup(name, semver string) (string, bool) {
	if l == nil {
		return "", false
	}
	v, ok := l.entries[name+"@"+semver]
	return v, ok
}

// Len returns the number of name@semver keys.
func (l *Lock) Len() int { return len(l.entries) }

// Read parses the yarn.lock at path. A missing file is (nil, nil).
func Read(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLock, err, "%s", path)
	}
	return l, nil
}

// Parse detects the format and decodes data.
func Parse(data []byte) (*Lock, error) {
	if bytes.Contains(data, []byte("\n__metadata:")) || bytes.HasPrefix(data, []byte("__metadata:")) {
		return parseBerry(data)
	}
	return parseClassic(data)
}

type berryEntry struct {
	Version string `yaml:"version"`
}

func parseBerry(data []byte) (*Lock, error) {
	var doc map[string]berryEntry
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLock, err, "parse berry yarn.lock")
	}
	l := &Lock{entries: make(map[string]string)}
	for header, e := range doc {
		if header == "__metadata" || e.Version == "" {
			continue
		}
		l.addHeader(header, e.Version)
	}
	return l, nil
}

func parseClassic(data []byte) (*Lock, error) {
	l := &Lock{entries: make(map[string]string)}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	header, lineNo := "", 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if line[0] != ' ' {
			if !strings.HasSuffix(trimmed, ":") {
				return nil, errors.New(errors.ErrCodeInvalidLock, "yarn.lock line %d: expected entry header", lineNo)
			}
			header = strings.TrimSuffix(trimmed, ":")
			continue
		}
		if header == "" || !strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "   ") {
			continue
		}
		key, val, ok := strings.Cut(trimmed, " ")
		if !ok || key != "version" {
			continue
		}
		v, err := unquote(val)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidLock, err, "yarn.lock line %d", lineNo)
		}
		l.addHeader(header, v)
		header = ""
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidLock, err, "read yarn.lock")
	}
	return l, nil
}

// addHeader records every selector of a comma-separated entry header.
func (l *Lock) addHeader(header, version string) {
	for _, sel := range strings.Split(header, ",") {
		sel, err := unquote(strings.TrimSpace(sel))
		if err != nil || sel == "" {
			continue
		}
		name, sv, ok := splitSelector(sel)
		if !ok {
			continue
		}
		l.entries[name+"@"+strings.TrimPrefix(sv, "npm:")] = version
	}
}

// splitSelector splits "name@range" at the version separator, skipping the
// leading "@" of scoped names.
func splitSelector(sel string) (name, semver string, ok bool) {
	if len(sel) < 2 {
		return "", "", false
	}
	i := strings.Index(sel[1:], "@")
	if i < 0 {
		return "", "", false
	}
	i++
	return sel[:i], sel[i+1:], true
}

func unquote(s string) (string, error) {
	if len(s) >= 2 && s[0] == '"' {
		return strconv.Unquote(s)
	}
	return s, nil
}
