package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/pkg/logger"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, name string, v any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	var data []byte
	switch v := v.(type) {
	case string:
		data = []byte(v)
	default:
		var err error
		data, err = json.Marshal(v)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// roamed is the sample bundle seen from a different network.
func roamed() models.Fingerprint {
	f := models.SampleFingerprint()
	f.Advanced.Network = &models.NetworkHints{ConnectionType: "cellular", EffectiveType: "3g", RTT: 300, Downlink: 1.5}
	return f
}

func TestConfigValidate(t *testing.T) {
	out, err := runCLI(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "high_confidence_match = 0.95")
	assert.Contains(t, out, "Configuration valid")

	overlay := writeFile(t, "matcher.toml", "minimum_similarity = 0.65\nmax_match_age = '30d'\n")
	out, err = runCLI(t, "config", "validate", "--matcher-config", overlay)
	require.NoError(t, err)
	assert.Contains(t, out, "minimum_similarity = 0.65")

	broken := writeFile(t, "broken.toml", "minimum_similarity = 0.9\n")
	_, err = runCLI(t, "config", "validate", "--matcher-config", broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid matcher config")

	unknown := writeFile(t, "unknown.toml", "no_such_field = 1\n")
	_, err = runCLI(t, "config", "validate", "--matcher-config", unknown)
	assert.Error(t, err)
}

func TestMatchCommand(t *testing.T) {
	current := writeFile(t, "current.json", models.SampleFingerprint())
	candidates := writeFile(t, "candidates.json", []models.StoredFingerprint{{
		FingerprintID:  "fp-1",
		Signals:        roamed(),
		DeviceCategory: models.DeviceDesktop,
		LastSeen:       time.Now().Add(-time.Hour),
		SeenCount:      2,
	}})

	out, err := runCLI(t, "match", "--current", current, "--candidates", candidates, "--json")
	require.NoError(t, err)

	var result models.MatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.RecommendAccept, result.Recommendation)
	require.NotNil(t, result.PrimaryMatch)
	assert.Equal(t, "fp-1", result.PrimaryMatch.FingerprintID)

	out, err = runCLI(t, "match", "--current", current, "--candidates", candidates)
	require.NoError(t, err)
	assert.Contains(t, out, "Recommendation: accept")
	assert.Contains(t, out, "fp-1")
}

func TestMatchCommand_NoCandidates(t *testing.T) {
	current := writeFile(t, "current.json", models.SampleFingerprint())
	candidates := writeFile(t, "candidates.json", "[]")

	out, err := runCLI(t, "match", "--current", current, "--candidates", candidates)
	require.NoError(t, err)
	assert.Contains(t, out, "Recommendation: new_device")
	assert.Contains(t, out, "No matches")
}

func TestMatchCommand_Errors(t *testing.T) {
	_, err := runCLI(t, "match", "--candidates", "x.json")
	assert.Error(t, err)

	current := writeFile(t, "current.json", "{not json")
	candidates := writeFile(t, "candidates.json", "[]")
	_, err = runCLI(t, "match", "--current", current, "--candidates", candidates)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestRecognizeCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "signet.db")

	out, err := runCLI(t, "recognize", "--db", db, "--tenant", "acme",
		"--current", writeFile(t, "first.json", models.SampleFingerprint()), "--json")
	require.NoError(t, err)
	var first models.RecognizeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.True(t, first.IsNew)
	assert.Equal(t, models.RecommendNewDevice, first.Recommendation)

	out, err = runCLI(t, "recognize", "--db", db, "--tenant", "acme",
		"--current", writeFile(t, "second.json", roamed()), "--json")
	require.NoError(t, err)
	var second models.RecognizeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.False(t, second.IsNew)
	assert.Equal(t, models.RecommendAccept, second.Recommendation)
	assert.Equal(t, first.FingerprintID, second.FingerprintID)

	_, err = runCLI(t, "recognize", "--db", db, "--tenant", "bad tenant!",
		"--current", writeFile(t, "third.json", models.SampleFingerprint()))
	assert.Error(t, err)
}

func TestSampleCommand(t *testing.T) {
	out, err := runCLI(t, "sample")
	require.NoError(t, err)

	var f models.Fingerprint
	require.NoError(t, json.Unmarshal([]byte(out), &f))
	assert.Equal(t, models.SampleFingerprint().UserAgent, f.UserAgent)
}

func TestComponentsCommand(t *testing.T) {
	out, err := runCLI(t, "components")
	require.NoError(t, err)

	for _, c := range models.AllComponents {
		assert.Contains(t, out, c.String())
	}
	assert.Contains(t, out, "advanced")
	assert.Contains(t, out, "behavioral")
	assert.Regexp(t, `canvas\s+│\s+core\s+│\s+1\.00`, out)
	assert.Regexp(t, `network\s+│\s+advanced.*yes`, out)
}

func TestPackageLogsGoToStderr(t *testing.T) {
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"sample"})
	require.NoError(t, cmd.Execute())

	logger.Warn("retrying store operation")
	assert.Contains(t, stderr.String(), "retrying store operation")
	assert.NotContains(t, stdout.String(), "retrying store operation")
}
