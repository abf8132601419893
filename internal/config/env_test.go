package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProgramID = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ESCROW_PROGRAM_ID", testProgramID)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "https://api.devnet.solana.com", c.SolanaRPCURL)
	assert.Equal(t, testProgramID, c.programID.String())
}

func TestLoadInvalidProgram(t *testing.T) {
	t.Setenv("ESCROW_PROGRAM_ID", "not-a-key")
	_, err := Load()
	assert.Error(t, err)
}

func TestInitAndGetters(t *testing.T) {
	t.Setenv("ESCROW_PROGRAM_ID", testProgramID)
	t.Setenv("PORT", "9090")
	t.Setenv("SOLANA_FILE_PATH", "/tmp/signer.cwt")

	require.NoError(t, Init())
	assert.Equal(t, "9090", GetPort())
	assert.Equal(t, "/tmp/signer.cwt", GetKeystorePath())
	assert.Equal(t, testProgramID, GetEscrowProgramID().String())
}

func TestPasswordStore(t *testing.T) {
	assert.Error(t, SetPassword(nil))

	require.NoError(t, SetPassword([]byte("hunter2")))
	got, err := GetKeystorePasswordBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), got)

	// Returned slice is a copy
	clear(got)
	again, err := GetKeystorePasswordBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), again)
}
