package main

import (
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogFlagsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	var c cli
	parser, err := kong.New(&c, kong.Name("escrowctl"))
	require.NoError(t, err)
	kctx, err := parser.Parse([]string{"simulate"})
	require.NoError(t, err)

	assert.Equal(t, "simulate", kctx.Command())
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, "console", c.LogFormat)
}

func TestServeReadsKeystoreBeforePrompt(t *testing.T) {
	t.Setenv("ESCROW_PROGRAM_ID", "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")
	t.Setenv("SOLANA_FILE_PATH", filepath.Join(t.TempDir(), "missing.cwt"))

	err := (&serveCmd{}).Run(zap.NewNop())
	assert.ErrorContains(t, err, "file does not exist")
}
