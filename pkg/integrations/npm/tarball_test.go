package npm

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/fyn/internal/registrytest"
	"github.com/matzehuels/fyn/pkg/cache"
	"github.com/matzehuels/fyn/pkg/errors"
)

func TestFetchTarballManifest(t *testing.T) {
	reg := registrytest.New(t)
	reg.Add("tool", "1.4.0", registrytest.Version{Dependencies: map[string]string{"dep": "^1.0.0"}})

	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(Config{Registry: reg.URL, Cache: c})
	url := reg.TarballURL("tool", "1.4.0")

	for range 2 {
		pkg, err := client.FetchTarballManifest(context.Background(), url)
		if err != nil {
			t.Fatalf("FetchTarballManifest: %v", err)
		}
		if pkg.ID() != "tool@1.4.0" {
			t.Errorf("ID() = %q", pkg.ID())
		}
		if got, _ := pkg.Dependencies.Get("dep"); got != "^1.0.0" {
			t.Errorf("dep = %q", got)
		}
		if pkg.Dist.Tarball != url {
			t.Errorf("Tarball = %q", pkg.Dist.Tarball)
		}
	}
	if reg.TarballRequests() != 1 {
		t.Errorf("tarball downloads = %d, want 1", reg.TarballRequests())
	}
}

func TestExtract(t *testing.T) {
	reg := registrytest.New(t)
	reg.Add("tool", "1.0.0", registrytest.Version{Files: map[string]string{"lib/index.js": "module.exports = 1\n"}})

	client := NewClient(Config{Registry: reg.URL})
	ctx := context.Background()
	doc, err := client.FetchPackument(ctx, "tool", false)
	if err != nil {
		t.Fatal(err)
	}
	dist := doc.Versions["1.0.0"].Dist

	dir := t.TempDir()
	if err := client.Extract(ctx, dist.Tarball, dist.Integrity, dir); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "lib", "index.js"))
	if err != nil || string(data) != "module.exports = 1\n" {
		t.Errorf("lib/index.js = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err != nil {
		t.Errorf("package.json: %v", err)
	}

	err = client.Extract(ctx, dist.Tarball, "sha512-bm90IHRoZSBkaWdlc3Q=", t.TempDir())
	if !errors.Is(err, errors.ErrCodeInvalidPackage) {
		t.Errorf("integrity mismatch: got %v", err)
	}
	err = client.Extract(ctx, dist.Tarball, "md5-abc", t.TempDir())
	if !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("unknown algorithm: got %v", err)
	}
}

func tarball(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, content := range entries {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadTarballManifest(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
		want    string
		code    errors.Code
	}{
		{"registry layout", map[string]string{"package/package.json": `{"name":"a","version":"1.0.0"}`}, "a@1.0.0", ""},
		{"github layout", map[string]string{"repo-abc123/package.json": `{"name":"b","version":"2.0.0"}`}, "b@2.0.0", ""},
		{"nested ignored", map[string]string{"package/sub/package.json": `{"name":"c"}`}, "", errors.ErrCodeInvalidPackage},
		{"bad json", map[string]string{"package/package.json": `{`}, "", errors.ErrCodeInvalidManifest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := ReadTarballManifest(bytes.NewReader(tarball(t, tt.entries)))
			if tt.code != "" {
				if !errors.Is(err, tt.code) {
					t.Fatalf("error = %v, want %s", err, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if pkg.ID() != tt.want {
				t.Errorf("ID() = %q, want %q", pkg.ID(), tt.want)
			}
		})
	}

	if _, err := ReadTarballManifest(bytes.NewReader([]byte("not gzip"))); !errors.Is(err, errors.ErrCodeInvalidPackage) {
		t.Errorf("not gzip: got %v", err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	data := tarball(t, map[string]string{"package/../../evil": "x"})
	err := extractTo(bytes.NewReader(data), t.TempDir())
	if !errors.Is(err, errors.ErrCodeInvalidPath) {
		t.Errorf("traversal: got %v", err)
	}
}
