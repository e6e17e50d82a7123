package source

import (
	"context"
	"strings"

	"github.com/matzehuels/fyn/pkg/deps"
	"github.com/matzehuels/fyn/pkg/errors"
	"github.com/matzehuels/fyn/pkg/integrations"
)

// FetchURLSemverMeta returns single-version metadata read from the
// package.json inside a remote tarball. Repository URLs are not supported.
func (s *Source) FetchURLSemverMeta(ctx context.Context, item *deps.Item) (*deps.Packument, error) {
	url := item.Spec.URL
	if item.URLType == "git" || !isHTTP(url) {
		return nil, errors.New(errors.ErrCodeUnsupported, "%s: git dependencies are not supported (%s)", item.Name, integrations.NormalizeRepoURL(url))
	}
	pkg, err := s.client.FetchTarballManifest(ctx, url)
	if err != nil {
		return nil, err
	}
	if pkg.Name == "" {
		pkg.Name = item.Name
	}
	s.logger.Debug("read tarball manifest", "pkg", pkg.ID(), "url", url)
	return deps.NewLocalPackument(pkg), nil
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
