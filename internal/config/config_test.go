package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trac-hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
trac:
  database: /var/lib/trac/trac.db
  url: https://trac.example.org
github:
  repo: example/project
  token: file-token
users:
  alice: alice-gh
labels:
  component:
    web: "component: web"
  resolution:
    wontfix: wontfix
migrate:
  singlepost: true
  skip_closed: true
  start_ticket: 42
  revmap: /tmp/revmap.txt
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/trac/trac.db", config.Trac.Database)
	assert.Equal(t, "https://trac.example.org", config.Trac.URL)
	assert.Equal(t, "example/project", config.GitHub.Repo)
	assert.Equal(t, "file-token", config.GitHub.Token)
	assert.Equal(t, map[string]string{"alice": "alice-gh"}, config.Users)
	assert.Equal(t, "component: web", config.Labels["component"]["web"])
	assert.Equal(t, "wontfix", config.Labels["resolution"]["wontfix"])
	assert.True(t, config.Migrate.SinglePost)
	assert.True(t, config.Migrate.SkipClosed)
	assert.Equal(t, int64(42), config.Migrate.StartTicket)
	assert.Equal(t, "/tmp/revmap.txt", config.Migrate.Revmap)

	// Safety checks default to enabled.
	assert.True(t, config.Migrate.Verify)
}

func TestLoadConfigTokenFromEnvironment(t *testing.T) {
	path := writeConfigFile(t, `
trac:
  database: trac.db
github:
  repo: example/project
`)

	t.Setenv("GITHUB_TOKEN", "env-token")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", config.GitHub.Token)
}

func TestLoadConfigMissingFile(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Nil(t, config)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		database string
		repo     string
		token    string
		wantErr  bool
	}{
		{
			name:     "All fields present",
			database: "trac.db",
			repo:     "example/project",
			token:    "test-token",
			wantErr:  false,
		},
		{
			name:     "Missing database",
			database: "",
			repo:     "example/project",
			token:    "test-token",
			wantErr:  true,
		},
		{
			name:     "Missing repo",
			database: "trac.db",
			repo:     "",
			token:    "test-token",
			wantErr:  true,
		},
		{
			name:     "Missing token",
			database: "trac.db",
			repo:     "example/project",
			token:    "",
			wantErr:  true,
		},
		{
			name:     "Repo without owner",
			database: "trac.db",
			repo:     "project",
			token:    "test-token",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{
				Trac:   TracConfig{Database: tt.database},
				GitHub: GitHubConfig{Repo: tt.repo, Token: tt.token},
			}

			err := validateConfig(config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
