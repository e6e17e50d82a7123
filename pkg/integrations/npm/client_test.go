package npm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/matzehuels/fyn/internal/registrytest"
	"github.com/matzehuels/fyn/pkg/cache"
	"github.com/matzehuels/fyn/pkg/integrations"
)

func TestFetchPackument(t *testing.T) {
	reg := registrytest.New(t)
	reg.Add("mod-a", "1.0.0", registrytest.Version{}).
		Add("mod-a", "1.2.0", registrytest.Version{Dependencies: map[string]string{"mod-b": "^2.0.0"}}).
		Add("@scope/pkg", "0.1.0", registrytest.Version{})

	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	client := NewClient(Config{Registry: reg.URL, Cache: c})
	ctx := context.Background()

	doc, err := client.FetchPackument(ctx, "mod-a", false)
	if err != nil {
		t.Fatalf("FetchPackument: %v", err)
	}
	if doc.DistTags["latest"] != "1.2.0" {
		t.Errorf("latest = %q", doc.DistTags["latest"])
	}
	v, ok := doc.Versions["1.2.0"]
	if !ok {
		t.Fatal("missing version 1.2.0")
	}
	if got, _ := v.Dependencies.Get("mod-b"); got != "^2.0.0" {
		t.Errorf("mod-b request = %q", got)
	}
	if v.Dist.Tarball == "" {
		t.Error("dist.tarball should be set")
	}

	// Second fetch is served from cache.
	if _, err := client.FetchPackument(ctx, "mod-a", false); err != nil {
		t.Fatal(err)
	}
	if reg.Requests() != 1 {
		t.Errorf("registry requests = %d, want 1", reg.Requests())
	}

	scoped, err := client.FetchPackument(ctx, "@scope/pkg", false)
	if err != nil {
		t.Fatalf("scoped FetchPackument: %v", err)
	}
	if scoped.Name != "@scope/pkg" {
		t.Errorf("scoped name = %q", scoped.Name)
	}
}

func TestFetchPackumentNotFound(t *testing.T) {
	reg := registrytest.New(t)
	client := NewClient(Config{Registry: reg.URL})

	_, err := client.FetchPackument(context.Background(), "missing", false)
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPackumentKeyScopedByToken(t *testing.T) {
	a := NewClient(Config{Registry: "https://npm.example.com", Token: "one"})
	b := NewClient(Config{Registry: "https://npm.example.com", Token: "two"})
	pub := NewClient(Config{Registry: "https://npm.example.com"})

	if a.PackumentKey("x") == b.PackumentKey("x") {
		t.Error("different tokens must not share cache keys")
	}
	if a.PackumentKey("x") == pub.PackumentKey("x") {
		t.Error("authenticated and anonymous keys must differ")
	}
	full := NewClient(Config{Registry: "https://npm.example.com", FullMeta: true})
	if full.PackumentKey("x") == pub.PackumentKey("x") {
		t.Error("full and abbreviated documents must not share cache keys")
	}
}

func TestWirePackumentTime(t *testing.T) {
	w := wirePackument{
		Name: "x",
		Time: map[string]json.RawMessage{
			"1.0.0":       json.RawMessage(`"2020-01-02T03:04:05.000Z"`),
			"unpublished": json.RawMessage(`{"time":"2021-01-01T00:00:00.000Z"}`),
		},
	}
	p := w.packument()
	if len(p.Time) != 1 {
		t.Fatalf("Time = %v", p.Time)
	}
	if p.Time["1.0.0"].Year() != 2020 {
		t.Errorf("1.0.0 time = %v", p.Time["1.0.0"])
	}
	if p.Versions == nil || p.DistTags == nil {
		t.Error("nil maps should be initialised")
	}
}
