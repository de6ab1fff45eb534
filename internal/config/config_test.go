package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDevelopment())

	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 3, cfg.MissedHeartbeats)
	assert.Equal(t, 64, cfg.SendQueueCapacity)
	assert.Equal(t, 256, cfg.RingSize)
	assert.Equal(t, 30*time.Second, cfg.RoomGracePeriod)

	assert.Equal(t, 10*time.Second, cfg.AttemptTimeout)
	assert.Equal(t, 45*time.Second, cfg.TaskDeadline)
	assert.Equal(t, 3, cfg.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.BreakerCooldown)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("HEARTBEAT_INTERVAL", "5s")
	t.Setenv("MISSED_HEARTBEATS", "5")
	t.Setenv("AI_SUMMARIZE_CHAIN", "gemini, openai")

	cfg := Load()
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5, cfg.MissedHeartbeats)
	assert.Equal(t, []string{"gemini", "openai"}, cfg.SummarizeChain)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MISSED_HEARTBEATS", "many")
	t.Setenv("HEARTBEAT_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 3, cfg.MissedHeartbeats)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
}

func TestProviderChain(t *testing.T) {
	cfg := Load()

	require.Equal(t, []string{"openai", "gemini"}, cfg.ProviderChain("transcribe"))
	require.Equal(t, []string{"anthropic", "openai", "gemini"}, cfg.ProviderChain("summarize"))
	require.Equal(t, []string{"anthropic", "openai"}, cfg.ProviderChain("extract-actions"))
	assert.Nil(t, cfg.ProviderChain("translate"))
}
