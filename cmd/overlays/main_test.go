package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("-121, 46,-120,47.5")
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{-121, 46}, Max: orb.Point{-120, 47.5}}, b)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "-120,46,-121,47", "-190,0,-170,10", "0,-95,10,10"} {
		_, err := parseBBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidateCmd_EmbeddedData(t *testing.T) {
	var out bytes.Buffer
	cmd := validateCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ok   catalog")
	assert.Contains(t, out.String(), "ok   tribal boundaries")
	assert.Contains(t, out.String(), "ok   flood stages")
}

func TestValidateCmd_BadStages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sites: [not, a, map]\n"), 0o600))

	var out bytes.Buffer
	cmd := validateCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--flood-stages", path})

	require.Error(t, cmd.Execute())
	assert.Contains(t, out.String(), "FAIL flood stages")
}

func TestSpecCmd_JSON(t *testing.T) {
	var out bytes.Buffer
	cmd := specCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())

	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Contains(t, doc.Paths, "/api/v1/maps/{id}")
}
