// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pdiddy/parcel-funnel/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  map[string]string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, RegistryAPIKey, "  rk_abc123  \n")
				writeFile(t, dir, GeocoderAPIKey, "gk_xyz789")
				writeFile(t, dir, StoreDSN, "postgres://funnel@db/campaigns\n")
				return dir
			},
			want: map[string]string{
				RegistryAPIKey: "rk_abc123",
				GeocoderAPIKey: "gk_xyz789",
				StoreDSN:       "postgres://funnel@db/campaigns",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, PECAPIKey, "valid-key")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				return dir
			},
			want: map[string]string{
				PECAPIKey: "valid-key",
			},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden-key", "secret")
				writeFile(t, dir, RegistryAPIKey, "rk_real")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: map[string]string{
				RegistryAPIKey: "rk_real",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read files without permission bits")
	}
	dir := t.TempDir()
	writeFile(t, dir, "good-key", "value123")

	badPath := filepath.Join(dir, "bad-key")
	require.NoError(t, os.WriteFile(badPath, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	core, logs := observer.New(zap.WarnLevel)
	got, err := Load(dir, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, "value123", got["good-key"])
	_, hasBad := got["bad-key"]
	assert.False(t, hasBad, "unreadable file should not appear in result")
	assert.Equal(t, 1, logs.FilterMessage("could not read secret").Len())
}

func TestApply(t *testing.T) {
	cfg := types.DefaultCampaignConfig()
	cfg.Lookup.Geocoder.APIKey = "from-config"

	Apply(map[string]string{
		RegistryAPIKey: "rk",
		GeocoderAPIKey: "gk",
		RegistryDSN:    "oracle://mirror",
	}, &cfg)

	assert.Equal(t, "rk", cfg.Lookup.Registry.APIKey)
	assert.Equal(t, "from-config", cfg.Lookup.Geocoder.APIKey)
	assert.Empty(t, cfg.Lookup.PEC.APIKey)
	assert.Equal(t, "oracle://mirror", cfg.Lookup.Registry.DSN)
	assert.Empty(t, cfg.Store.DSN)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
