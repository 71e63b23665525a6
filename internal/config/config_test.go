package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"llm": {"model": "gemini-2.5-pro"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, "gemini-2.5-pro", cfg.Simulation.UserModel)
	assert.Equal(t, "gemini-2.5-pro", cfg.Simulation.JudgeModel)
	assert.Equal(t, DefaultImprovementGoal, cfg.Simulation.DefaultGoal)
	assert.Equal(t, 5, cfg.Simulation.DefaultTurns)
	assert.Equal(t, 10, cfg.Simulation.MaxTurns)
	assert.Equal(t, 10, cfg.Assistant.MaxHistory)
}

func TestLoad_ParsesTimeoutDuration(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"llm": {"timeout": "45s"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"llm": {"modle": "typo"}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestLoad_RejectsDefaultTurnsAboveCap(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"simulation": {"default_turns": 9, "max_turns": 3}}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateSettings_RejectsBadTypes(t *testing.T) {
	t.Parallel()

	err := ValidateSettings(map[string]any{
		"simulation": map[string]any{"max_turns": "ten"},
	})
	require.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, defaultModel, cfg.LLM.Model)
	assert.LessOrEqual(t, cfg.Simulation.DefaultTurns, cfg.Simulation.MaxTurns)
}
