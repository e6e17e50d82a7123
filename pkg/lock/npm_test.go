package lock

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/matzehuels/fyn/pkg/errors"
)

const samplePackageLock = `{
  "name": "app",
  "lockfileVersion": 3,
  "packages": {
    "": {
      "name": "app",
      "dependencies": {"a": "^1.0.0", "c": "^1.0.0"},
      "devDependencies": {"d": "~2.0.0"}
    },
    "node_modules/a": {
      "version": "1.2.0",
      "resolved": "https://registry.npmjs.org/a/-/a-1.2.0.tgz",
      "integrity": "sha512-a",
      "dependencies": {"b": "^1.0.0"}
    },
    "node_modules/b": {
      "version": "1.5.0",
      "resolved": "https://registry.npmjs.org/b/-/b-1.5.0.tgz"
    },
    "node_modules/c": {
      "version": "1.0.0",
      "dependencies": {"b": "^2.0.0"},
      "hasInstallScript": true
    },
    "node_modules/c/node_modules/b": {
      "version": "2.0.1"
    },
    "node_modules/d": {
      "version": "2.0.3",
      "os": ["darwin"]
    },
    "node_modules/ws": {
      "resolved": "packages/ws",
      "link": true
    },
    "packages/ws": {
      "name": "ws",
      "version": "0.0.1"
    }
  }
}`

func TestParseNpmLock(t *testing.T) {
	f, err := ParseNpmLock([]byte(samplePackageLock))
	if err != nil {
		t.Fatalf("ParseNpmLock: %v", err)
	}

	b := f.Entries["b"]
	if b == nil || len(b.Versions) != 2 {
		t.Fatalf("b = %+v", b)
	}
	if got := b.Groups["^1.0.0"]; !slices.Equal(got, Versions{"1.5.0"}) {
		t.Errorf("b ^1.0.0 = %v", got)
	}
	if got := b.Groups["^2.0.0"]; !slices.Equal(got, Versions{"2.0.1"}) {
		t.Errorf("nested b ^2.0.0 = %v", got)
	}

	a := f.Entries["a"].Versions["1.2.0"]
	if !a.Top || a.Integrity != "sha512-a" || a.Resolved != "https://registry.npmjs.org/a/-/a-1.2.0.tgz" {
		t.Errorf("a@1.2.0 = %+v", a)
	}
	if !f.Entries["c"].Versions["1.0.0"].HasI {
		t.Error("c should carry hasInstallScript")
	}
	d := f.Entries["d"]
	if got := d.Groups["~2.0.0"]; !slices.Equal(got, Versions{"2.0.3"}) {
		t.Errorf("dev dependency d = %v", d.Groups)
	}
	if d.Versions["2.0.3"].Top {
		t.Error("dev dependency marked top")
	}
	if _, ok := f.Entries["ws"]; !ok {
		t.Error("workspace package missing")
	}
	if len(f.Entries["ws"].Groups) != 0 {
		t.Error("linked package should not get semver groups")
	}
}

func TestParseNpmLockErrors(t *testing.T) {
	_, err := ParseNpmLock([]byte(`{"lockfileVersion": 1, "dependencies": {}}`))
	if !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("v1 lock: got %v", err)
	}
	_, err = ParseNpmLock([]byte(`{`))
	if !errors.Is(err, errors.ErrCodeInvalidLock) {
		t.Errorf("bad json: got %v", err)
	}
}

func TestReadNpmLock(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, NpmLockFile)
	if f, err := ReadNpmLock(p); f != nil || err != nil {
		t.Fatalf("missing = %v, %v", f, err)
	}
	if err := os.WriteFile(p, []byte(samplePackageLock), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := ReadNpmLock(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Entries) != 5 {
		t.Errorf("entries = %d", len(f.Entries))
	}
}

func TestNpmFind(t *testing.T) {
	pkgs := map[string]*npmPackage{
		"node_modules/b":                               {Version: "1"},
		"node_modules/a/node_modules/b":                {Version: "2"},
		"node_modules/a/node_modules/@s/x":             {Version: "3"},
		"node_modules/a/node_modules/c":                {Version: "4"},
		"node_modules/a/node_modules/c/node_modules/z": {Version: "5"},
	}
	tests := []struct {
		from, name, want string
	}{
		{"", "b", "1"},
		{"node_modules/a", "b", "2"},
		{"node_modules/a/node_modules/c", "b", "2"},
		{"node_modules/a/node_modules/c", "@s/x", "3"},
		{"node_modules/d", "b", "1"},
		{"packages/ws", "b", "1"},
		{"node_modules/a", "z", ""},
	}
	for _, tt := range tests {
		got := ""
		if p := npmFind(pkgs, tt.from, tt.name); p != nil {
			got = p.Version
		}
		if got != tt.want {
			t.Errorf("npmFind(%q, %q) = %q, want %q", tt.from, tt.name, got, tt.want)
		}
	}
	if n := npmName("node_modules/a/node_modules/@s/x"); n != "@s/x" {
		t.Errorf("npmName = %q", n)
	}
}
