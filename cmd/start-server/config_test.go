package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "model.yaml", `
lattice: lattice.yaml
datamaps: /abs/datamaps.yaml
select: [quad, klystron]
pvdata: data/pvdata.json
prefix: "BMAD:"
monitor: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lattice.yaml"), cfg.Lattice)
	assert.Equal(t, "/abs/datamaps.yaml", cfg.DataMaps)
	assert.Equal(t, filepath.Join(dir, "data", "pvdata.json"), cfg.PVData)
	assert.Equal(t, []string{"quad", "klystron"}, cfg.Select)
	assert.Equal(t, "BMAD:", cfg.Prefix)
	require.NotNil(t, cfg.Monitor)
	assert.False(t, *cfg.Monitor)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(writeFile(t, dir, "empty.yaml", "prefix: X\n"))
	assert.ErrorContains(t, err, "lattice is required")
	assert.ErrorContains(t, err, "datamaps is required")

	_, err = LoadConfig(writeFile(t, dir, "typo.yaml", "latice: a.yaml\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
