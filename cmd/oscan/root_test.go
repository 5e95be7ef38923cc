package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("OSCAN_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestModelsCommand(t *testing.T) {
	t.Setenv("MODEL_VARIANTS", "gemini-2.0-flash-lite,gpt-4o-mini,llama-3")
	t.Setenv("GEMINI_API_KEY", "AIza-test")
	t.Setenv("OPENAI_API_KEY", "")

	out, err := runCLI(t, "models")
	require.NoError(t, err)

	assert.Contains(t, out, "gemini-2.0-flash-lite")
	assert.Regexp(t, `1\s+gemini-2.0-flash-lite\s+gemini\s+ready`, out)
	assert.Regexp(t, `2\s+gpt-4o-mini\s+openai\s+no credential`, out)
	assert.Regexp(t, `3\s+llama-3\s+unknown family`, out)
}

func TestTestEmailRequiresRecipient(t *testing.T) {
	_, err := runCLI(t, "test-email")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--to")
}

func TestMigrateRequiresDatabase(t *testing.T) {
	_, err := runCLI(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestEmitValidatesFlags(t *testing.T) {
	_, err := runCLI(t, "emit")
	require.Error(t, err)

	t.Setenv("NATS_URL", "")
	_, err = runCLI(t, "emit", "--kind", "user.login", "--via", "nats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NATS_URL")

	_, err = runCLI(t, "emit", "--kind", "user.login", "--via", "carrier-pigeon")
	require.Error(t, err)
}

func TestEmitRejectsUnpublishableSubject(t *testing.T) {
	t.Setenv("NATS_URL", "nats://127.0.0.1:1")
	t.Setenv("NATS_SUBJECT", "clinic.*.events")

	_, err := runCLI(t, "emit", "--kind", "user.login", "--via", "nats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clinic.*.events")
}
