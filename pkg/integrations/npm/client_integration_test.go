//go:build integration

package npm

import (
	"context"
	"testing"
	"time"
)

func TestFetchPackument_Integration(t *testing.T) {
	client := NewClient(Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tests := []struct {
		name    string
		pkg     string
		wantErr bool
	}{
		{"express", "express", false},
		{"scoped", "@babel/core", false},
		{"nonexistent", "this-package-should-not-exist-12345", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := client.FetchPackument(ctx, tt.pkg, false)
			if (err != nil) != tt.wantErr {
				t.Errorf("FetchPackument(%q) error = %v, wantErr %v", tt.pkg, err, tt.wantErr)
				return
			}
			if !tt.wantErr && doc.DistTags["latest"] == "" {
				t.Error("latest dist-tag should be set")
			}
		})
	}
}
