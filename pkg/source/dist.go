package source

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fyn/pkg/deps"
	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/integrations/npm"
)

// storeDir is where extracted packages live below node_modules, one
// directory per name and version, so that probes never touch the
// installed tree.
const storeDir = ".f"

// Dist extracts registry tarballs so that the resolver can read shrinkwrap
// files and run preinstall probes.
type Dist struct {
	client  *npm.Client
	modules string
	logger  *log.Logger
}

var _ deps.DistFetcher = (*Dist)(nil)

// NewDist creates a fetcher that extracts below the node_modules
// directory modules.
func NewDist(client *npm.Client, modules string, logger *log.Logger) *Dist {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Dist{client: client, modules: modules, logger: logger}
}

// Dir returns the extraction directory of name@version.
func (d *Dist) Dir(name, version string) string {
	return filepath.Join(d.modules, storeDir, filepath.FromSlash(name), version)
}

// PutPkgInNodeModules extracts vi's tarball unless a previous extraction is
// present. Local packages are used in place.
func (d *Dist) PutPkgInNodeModules(ctx context.Context, vi *deps.VersionInfo, force bool) (string, error) {
	if vi.LocalPath != "" {
		return vi.LocalPath, nil
	}
	if vi.Dist.Tarball == "" {
		return "", errors.New(errors.ErrCodeInvalidPackage, "%s has no tarball", vi.ID())
	}
	if err := errors.ValidatePackageName(vi.Name); err != nil {
		return "", err
	}

	dir := d.Dir(vi.Name, vi.Version)
	if !force {
		if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
			return dir, nil
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}

	tmp := dir + ".tmp"
	_ = os.RemoveAll(tmp)
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return "", err
	}
	if err := d.client.Extract(ctx, vi.Dist.Tarball, vi.Dist.Integrity, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		code := errors.GetCode(err)
		if code == "" {
			code = errors.ErrCodeNetwork
		}
		return "", errors.Wrap(code, err, "extract %s", vi.ID())
	}
	if err := os.Rename(tmp, dir); err != nil {
		return "", err
	}
	d.logger.Debug("extracted", "pkg", vi.ID(), "dir", dir)
	return dir, nil
}
