package source

import (
	"context"
	"os"

	"github.com/matzehuels/fyn/pkg/deps"
	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/integrations/npm"
	"github.com/matzehuels/fyn/pkg/manifest"
	"github.com/matzehuels/fyn/pkg/semver"
)

// FetchLocalItem reads the package at item.LocalPath: a directory with a
// package.json or a local .tgz file. A missing path is (nil, nil).
func (s *Source) FetchLocalItem(ctx context.Context, item *deps.Item) (*deps.Packument, error) {
	fi, err := os.Stat(item.LocalPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pkg *manifest.Package
	if fi.IsDir() {
		pkg, err = manifest.Load(item.LocalPath)
		if errors.Is(err, errors.ErrCodeFileNotFound) {
			return nil, nil
		}
	} else {
		pkg, err = readLocalTarball(item.LocalPath)
	}
	if err != nil {
		return nil, err
	}

	pkg.LocalPath = item.LocalPath
	pkg.Local = item.Spec.LocalType
	if pkg.Local == "" {
		pkg.Local = semver.LocalSym
	}
	if len(s.wsVersions) > 0 && manifest.RewriteWorkspaceProtocol(pkg, s.wsVersions) {
		s.logger.Debug("rewrote workspace protocol", "pkg", pkg.Name, "dir", item.LocalPath)
	}
	return deps.NewLocalPackument(pkg), nil
}

func readLocalTarball(path string) (*manifest.Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return npm.ReadTarballManifest(f)
}
