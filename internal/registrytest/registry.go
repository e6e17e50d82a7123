// Package registrytest runs an in-memory npm registry for tests.
package registrytest

import (
	"archive/tar"
	"bytes"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"
)

// Version describes one published version.
type Version struct {
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	Scripts              map[string]string `json:"scripts,omitempty"`
	OS                   []string          `json:"os,omitempty"`
	CPU                  []string          `json:"cpu,omitempty"`

	// Files are extra tarball entries keyed by path below the package root.
	Files map[string]string `json:"-"`
}

// Registry is a fake registry server.
type Registry struct {
	*httptest.Server

	mu       sync.Mutex
	pkgs     map[string]map[string]Version
	tags     map[string]map[string]string
	tarballs map[string][]byte // file name → .tgz
	requests atomic.Int64
	fetched  atomic.Int64
}

// New starts a registry that is shut down when the test ends.
func New(t testing.TB) *Registry {
	t.Helper()
	reg := &Registry{
		pkgs:     make(map[string]map[string]Version),
		tags:     make(map[string]map[string]string),
		tarballs: make(map[string][]byte),
	}
	r := chi.NewRouter()
	r.Get("/{name}", reg.servePackument)
	r.Get("/{scope}/{name}", reg.servePackument)
	r.Get("/-/tarball/{file}", reg.serveTarball)
	reg.Server = httptest.NewServer(r)
	t.Cleanup(reg.Close)
	return reg
}

// Add publishes name@version. The newest added version becomes "latest"
// unless SetTag says otherwise.
func (r *Registry) Add(name, version string, v Version) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pkgs[name] == nil {
		r.pkgs[name] = make(map[string]Version)
		r.tags[name] = make(map[string]string)
	}
	r.pkgs[name][version] = v
	r.tags[name]["latest"] = version
	r.tarballs[tarballFile(name, version)] = buildTarball(name, version, v)
	return r
}

// SetTag points a dist-tag at a version.
func (r *Registry) SetTag(name, tag, version string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[name][tag] = version
	return r
}

// Requests returns the number of packument requests served.
func (r *Registry) Requests() int { return int(r.requests.Load()) }

// TarballRequests returns the number of tarball downloads served.
func (r *Registry) TarballRequests() int { return int(r.fetched.Load()) }

// TarballURL returns the download URL of name@version.
func (r *Registry) TarballURL(name, version string) string {
	return r.URL + "/-/tarball/" + url.PathEscape(tarballFile(name, version))
}

func integrity(data []byte) string {
	sum := sha512.Sum512(data)
	return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
}

func tarballFile(name, version string) string {
	return strings.ReplaceAll(name, "/", "-") + "-" + version + ".tgz"
}

// buildTarball packs package.json and v.Files under "package/".
func buildTarball(name, version string, v Version) []byte {
	doc := map[string]any{
		"name":                 name,
		"version":              version,
		"dependencies":         v.Dependencies,
		"optionalDependencies": v.OptionalDependencies,
		"scripts":              v.Scripts,
	}
	pj, _ := json.Marshal(doc)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	write := func(p string, data []byte) {
		_ = tw.WriteHeader(&tar.Header{Name: "package/" + p, Mode: 0644, Size: int64(len(data)), Typeflag: tar.TypeReg})
		_, _ = tw.Write(data)
	}
	write("package.json", pj)
	paths := make([]string, 0, len(v.Files))
	for p := range v.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		write(p, []byte(v.Files[p]))
	}
	_ = tw.Close()
	_ = zw.Close()
	return buf.Bytes()
}

func (r *Registry) serveTarball(w http.ResponseWriter, req *http.Request) {
	file, err := url.PathUnescape(chi.URLParam(req, "file"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.mu.Lock()
	data, ok := r.tarballs[file]
	r.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}
	r.fetched.Add(1)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (r *Registry) servePackument(w http.ResponseWriter, req *http.Request) {
	r.requests.Add(1)
	name, err := url.PathUnescape(chi.URLParam(req, "name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if scope := chi.URLParam(req, "scope"); scope != "" {
		name = scope + "/" + name
	}

	r.mu.Lock()
	versions, ok := r.pkgs[name]
	doc := map[string]any{"name": name, "dist-tags": r.tags[name]}
	vs := make(map[string]any, len(versions))
	for ver, v := range versions {
		vs[ver] = map[string]any{
			"name":                 name,
			"version":              ver,
			"dependencies":         v.Dependencies,
			"optionalDependencies": v.OptionalDependencies,
			"peerDependencies":     v.PeerDependencies,
			"scripts":              v.Scripts,
			"os":                   v.OS,
			"cpu":                  v.CPU,
			"dist": map[string]string{
				"tarball":   r.TarballURL(name, ver),
				"integrity": integrity(r.tarballs[tarballFile(name, ver)]),
			},
		}
	}
	doc["versions"] = vs
	r.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}
