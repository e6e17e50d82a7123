package errors

import (
	"strings"
	"testing"
)

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"lodash", false},
		{"@types/node", false},
		{"", true},
		{strings.Repeat("a", 300), true},
		{"a/../../etc", true},
		{"@s//x", true},
		{"win\\dir", true},
		{"tab\tname", true},
	}
	for _, tt := range tests {
		err := ValidatePackageName(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if err != nil && !Is(err, ErrCodeInvalidPackage) {
			t.Errorf("ValidatePackageName(%q) code = %v", tt.input, GetCode(err))
		}
	}
}

func TestValidateNpmPackageName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"express", false},
		{"@babel/core", false},
		{"lodash.merge", false},
		{"JSONStream", false},
		{"~tilde", false},
		{"left-pad", false},

		{"", true},
		{".hidden", true},
		{"_private", true},
		{"@scope/.dot", true},
		{" padded", true},
		{"has space", true},
		{"a/b", true},
		{"node_modules", true},
		{"emoji-\u2603", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateNpmPackageName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNpmPackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"packages/ui", false},
		{"../shared/lib", false},
		{"vendor/tool-1.0.0.tgz", false},

		{"", true},
		{strings.Repeat("d/", 300), true},
		{"/etc/passwd", true},
		{"dir\\sub", true},
		{"nul\x00byte", true},
		{"line\nbreak", true},
	}
	for _, tt := range tests {
		err := ValidatePath(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if err != nil && !Is(err, ErrCodeInvalidPath) {
			t.Errorf("ValidatePath(%q) code = %v", tt.input, GetCode(err))
		}
	}
}

func TestValidateURL(t *testing.T) {
	for _, u := range []string{"https://registry.npmjs.org", "http://localhost:4873/"} {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v", u, err)
		}
	}
	for _, u := range []string{"", "registry.npmjs.org", "file:///tmp/reg", "ftp://mirror"} {
		if err := ValidateURL(u); !Is(err, ErrCodeInvalidInput) {
			t.Errorf("ValidateURL(%q) = %v, want INVALID_INPUT", u, err)
		}
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeInvalidInput,
		ErrCodeInvalidPackage,
		ErrCodeInvalidManifest,
		ErrCodeInvalidLock,
		ErrCodeInvalidConfig,
		ErrCodeInvalidPath,
		ErrCodeNotFound,
		ErrCodePackageNotFound,
		ErrCodeFileNotFound,
		ErrCodeNetwork,
		ErrCodeTimeout,
		ErrCodeRateLimited,
		ErrCodeUnauthorized,
		ErrCodeForbidden,
		ErrCodeUnsatisfiable,
		ErrCodeMetaFetch,
		ErrCodePlatformMismatch,
		ErrCodeLockOnlyMiss,
		ErrCodeInternal,
		ErrCodeUnsupported,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %s", code)
		}
		seen[code] = true
	}
}
