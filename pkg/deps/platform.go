package deps

import (
	"slices"
	"strings"
)

// Supports reports whether a package's os and cpu lists allow p. Entries
// prefixed with "!" exclude; a list of only exclusions allows everything
// else.
func (p Platform) Supports(osList, cpuList []string) bool {
	return allowed(osList, p.OS) && allowed(cpuList, p.CPU)
}

func allowed(list []string, value string) bool {
	if len(list) == 0 || value == "" {
		return true
	}
	if slices.Contains(list, "!"+value) {
		return false
	}
	positive := false
	for _, e := range list {
		if !strings.HasPrefix(e, "!") {
			positive = true
			if e == value || e == "any" {
				return true
			}
		}
	}
	return !positive
}
