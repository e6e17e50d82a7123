package npm

import (
	"archive/tar"
	"context"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/manifest"
)

// maxManifestSize bounds the package.json read from a tarball.
const maxManifestSize = 8 << 20

// FetchTarballManifest reads package/package.json from the tarball at url.
// The result is cached under the tarball URL.
func (c *Client) FetchTarballManifest(ctx context.Context, url string) (*manifest.Package, error) {
	var pkg manifest.Package
	err := c.Cached(ctx, c.keyer.ManifestKey(url), false, &pkg, func() error {
		body, err := c.Open(ctx, url)
		if err != nil {
			return err
		}
		defer body.Close()
		p, err := ReadTarballManifest(body)
		if err != nil {
			return err
		}
		pkg = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	pkg.Dist.Tarball = url
	return &pkg, nil
}

// ReadTarballManifest scans a gzipped npm tarball for the package.json at
// the top of its single root directory.
func ReadTarballManifest(r io.Reader) (*manifest.Package, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "open tarball")
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, errors.New(errors.ErrCodeInvalidPackage, "tarball has no package.json")
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "read tarball")
		}
		rel, ok := stripRoot(hdr.Name)
		if !ok || rel != "package.json" || hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxManifestSize))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "read package.json")
		}
		return manifest.Parse(data)
	}
}

// Extract downloads the tarball at url into dir, verifying integrity when
// one is given. Entries escaping dir are rejected.
func (c *Client) Extract(ctx context.Context, url, integrity, dir string) error {
	body, err := c.Open(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	h, want, err := integrityHash(integrity)
	if err != nil {
		return err
	}
	var r io.Reader = body
	if h != nil {
		r = io.TeeReader(body, h)
	}
	if err := extractTo(r, dir); err != nil {
		return err
	}
	if h != nil {
		// drain trailing padding so the digest covers the whole file
		if _, err := io.Copy(io.Discard, r); err != nil {
			return err
		}
		if got := h.Sum(nil); !strings.EqualFold(encodeDigest(integrity, got), want) {
			return errors.New(errors.ErrCodeInvalidPackage, "integrity mismatch for %s", url)
		}
	}
	return nil
}

func extractTo(r io.Reader, dir string) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPackage, err, "open tarball")
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidPackage, err, "read tarball")
		}
		rel, ok := stripRoot(hdr.Name)
		if !ok {
			continue
		}
		if !filepath.IsLocal(rel) {
			return errors.New(errors.ErrCodeInvalidPath, "tarball entry %q escapes package directory", hdr.Name)
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		}
	}
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// stripRoot removes the tarball's root directory ("package/" for registry
// tarballs, anything for GitHub archives).
func stripRoot(name string) (string, bool) {
	_, rest, ok := strings.Cut(strings.TrimPrefix(name, "./"), "/")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// integrityHash returns the hash for an SRI string ("sha512-<base64>") or a
// legacy hex sha1 shasum. An empty integrity disables verification.
func integrityHash(integrity string) (hash.Hash, string, error) {
	if integrity == "" {
		return nil, "", nil
	}
	algo, digest, ok := strings.Cut(integrity, "-")
	if !ok {
		return sha1.New(), integrity, nil
	}
	switch algo {
	case "sha512":
		return sha512.New(), digest, nil
	case "sha1":
		return sha1.New(), digest, nil
	}
	return nil, "", errors.New(errors.ErrCodeUnsupported, "integrity algorithm %q", algo)
}

func encodeDigest(integrity string, sum []byte) string {
	if !strings.Contains(integrity, "-") {
		return hex.EncodeToString(sum)
	}
	return base64.StdEncoding.EncodeToString(sum)
}
