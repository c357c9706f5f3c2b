package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:26658", cfg.ListenAddr)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Empty(t, cfg.MirrorPath)
	assert.Equal(t, 10000, cfg.EventRetain)

	p := cfg.Params()
	assert.Equal(t, 72*time.Hour, p.VotingPeriod.ToGo())
	assert.Equal(t, uint32(5000), p.QuorumBps)
	assert.Equal(t, uint32(3), p.MaxDefeats)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STAGEFUND_LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("STAGEFUND_MIRROR_PATH", "/var/lib/stagefund/mirror.db")
	t.Setenv("STAGEFUND_VOTING_PERIOD", "36h")
	t.Setenv("STAGEFUND_QUORUM_BPS", "2500")
	t.Setenv("STAGEFUND_MAX_DEFEATS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, "/var/lib/stagefund/mirror.db", cfg.MirrorPath)
	assert.Equal(t, 36*time.Hour, cfg.Governance.VotingPeriod)
	assert.Equal(t, uint32(2500), cfg.Params().QuorumBps)
	assert.Zero(t, cfg.Params().MaxDefeats)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string][2]string{
		"parse":        {"STAGEFUND_QUORUM_BPS", "half"},
		"quorum range": {"STAGEFUND_QUORUM_BPS", "10001"},
		"period":       {"STAGEFUND_VOTING_PERIOD", "0s"},
		"level":        {"STAGEFUND_LOG_LEVEL", "loud"},
		"format":       {"STAGEFUND_LOG_FORMAT", "xml"},
		"listen":       {"STAGEFUND_LISTEN_ADDR", " "},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLogger(t *testing.T) {
	t.Setenv("STAGEFUND_LOG_LEVEL", "warn")
	cfg, err := Load()
	require.NoError(t, err)

	var buf bytes.Buffer
	log := cfg.Logger(&buf)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"service":"stagefundd"`)
	assert.Contains(t, buf.String(), "shown")
}
