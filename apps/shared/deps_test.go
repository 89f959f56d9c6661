package shared

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ukaguzi/core"
	emailsvc "github.com/trezcool/ukaguzi/services/email"
)

const testProfile = `
programs:
  resources: resProg
  visits: visProg
categories: [toilets]
fields:
  deToilets: toilets
standards:
  - name: Toilets
    category: toilets
    minimum: 2
`

func testConfig(t *testing.T) *core.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testProfile), 0o600))

	return &core.Config{
		Debug:       true,
		TestMode:    true,
		AppName:     "Ukaguzi",
		ProfilePath: path,
		Database:    core.DatabaseConfig{InMemory: true},
		Tracker:     core.TrackerConfig{BaseURL: "http://localhost:8080", PageSize: 50, MaxConcurrency: 2},
	}
}

func TestSetup(t *testing.T) {
	conf := testConfig(t)

	deps, err := Setup(context.Background(), conf, "TEST")
	require.NoError(t, err)
	defer deps.Close()

	assert.Nil(t, deps.DB)
	assert.NotNil(t, deps.InspectionSvc)
	assert.NotNil(t, deps.Tracker)
	assert.IsType(t, &emailsvc.ConsoleService{}, deps.MailSvc)
	assert.Equal(t, "resProg", deps.Profile.Programs.Resources)

	pending, err := deps.InspectionSvc.QueryPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSetup_invalidProfile(t *testing.T) {
	conf := testConfig(t)
	conf.ProfilePath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Setup(context.Background(), conf, "TEST")
	assert.Error(t, err)
}
