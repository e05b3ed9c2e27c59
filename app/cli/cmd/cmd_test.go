package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetPrivateKeyPathAppendsExtension(t *testing.T) {
	walletPath = "zblock/wallets/"
	privateKeyName = "miner1"
	require.Equal(t, filepath.Join("zblock/wallets/", "miner1.ecdsa"), getPrivateKeyPath())
}

func TestGetPrivateKeyPathLeavesExistingExtension(t *testing.T) {
	walletPath = "zblock/wallets/"
	privateKeyName = "miner1.ecdsa"
	require.Equal(t, filepath.Join("zblock/wallets/", "miner1.ecdsa"), getPrivateKeyPath())
}

// TestGenerateThenAddressRoundTrips drives the generate and address
// commands through cobra exactly as a user would from the shell, and
// checks that the key file was written and that an 0x-prefixed address
// was printed.
func TestGenerateThenAddressRoundTrips(t *testing.T) {
	walletPath = t.TempDir()
	privateKeyName = "test"

	rootCmd.SetArgs([]string{"generate", "-p", walletPath, "-w", privateKeyName})
	require.NoError(t, rootCmd.Execute())

	_, err := os.Stat(getPrivateKeyPath())
	require.NoError(t, err)

	stdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	rootCmd.SetArgs([]string{"address", "-p", walletPath, "-w", privateKeyName})
	require.NoError(t, rootCmd.Execute())

	w.Close()
	os.Stdout = stdout

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)

	require.Contains(t, buf.String(), "0x")
}
