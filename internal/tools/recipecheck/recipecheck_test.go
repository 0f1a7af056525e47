package recipecheck

import (
	"bytes"
	"encoding/json"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var (
	cleanRecipe  = filepath.Join("..", "..", "recipe", "testdata", "recipe_a.Dockerfile")
	brokenRecipe = filepath.Join("..", "..", "recipe", "testdata", "recipe_b.Dockerfile")
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("recipecheck", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	return fs
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(newFlagSet(), []string{"-format", "yaml", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, []string{"a", "b"}, cfg.Paths)

	cfg, err = ParseConfig(newFlagSet(), []string{"Dockerfile"})
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Format)
}

func TestParseConfigUsageErrors(t *testing.T) {
	tests := [][]string{
		nil,
		{"-format", "xml", "Dockerfile"},
		{"-bogus"},
	}
	for _, args := range tests {
		_, err := ParseConfig(newFlagSet(), args)
		assert.ErrorIs(t, err, ErrUsage, "args %v", args)
	}
}

func TestRunText(t *testing.T) {
	var out bytes.Buffer
	ok, err := Run(Config{Format: "text", Paths: []string{cleanRecipe, brokenRecipe}}, &out)
	require.NoError(t, err)
	assert.False(t, ok)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, cleanRecipe+": ok", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], brokenRecipe+":3: error copy-malformed: "))
	assert.Equal(t, brokenRecipe+":7: warning port-mismatch: ENV PORT=3000 but EXPOSE declares 9000", lines[3])
}

func TestRunCleanPasses(t *testing.T) {
	var out bytes.Buffer
	ok, err := Run(Config{Format: "text", Paths: []string{cleanRecipe}}, &out)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunJSON(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(Config{Format: "json", Paths: []string{cleanRecipe}}, &out)
	require.NoError(t, err)

	var got []struct {
		Recipe struct {
			BaseImage    string `json:"base_image"`
			ExposedPorts []int  `json:"exposed_ports"`
		} `json:"recipe"`
		Findings []any `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "python:3.11-slim", got[0].Recipe.BaseImage)
	assert.Equal(t, []int{8050}, got[0].Recipe.ExposedPorts)
	assert.NotNil(t, got[0].Findings)
}

func TestRunYAML(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(Config{Format: "yaml", Paths: []string{brokenRecipe}}, &out)
	require.NoError(t, err)

	var got []struct {
		Findings []struct {
			Rule string `yaml:"rule"`
			Line int    `yaml:"line"`
		} `yaml:"findings"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	require.Len(t, got[0].Findings, 4)
	assert.Equal(t, "copy-malformed", got[0].Findings[0].Rule)
	assert.Equal(t, 9, got[0].Findings[3].Line)
}

func TestRunMissingFile(t *testing.T) {
	_, err := Run(Config{Format: "text", Paths: []string{filepath.Join(t.TempDir(), "nope")}}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "check ")
}

func TestRunNilOutput(t *testing.T) {
	_, err := Run(Config{Format: "text", Paths: []string{cleanRecipe}}, nil)
	assert.Error(t, err)
}
