package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistry(t *testing.T, snap *Snapshot) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain-registry.generated.json")
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestLoaderMissingFileYieldsEmptySnapshot(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"), 0)

	snap := loader.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.Version)
	assert.Empty(t, snap.Chains)
	assert.NotNil(t, snap.Chains)
}

func TestLoaderInvalidJSONYieldsEmptySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	snap := NewLoader(path, 0).Snapshot()
	assert.Empty(t, snap.Chains)
}

func TestLoaderReadsAndCaches(t *testing.T) {
	original := &Snapshot{
		Version: 7,
		Chains:  []Chain{{ChainKey: "local", ChainID: 31337}},
	}
	path := writeRegistry(t, original)
	loader := NewLoader(path, time.Hour)

	snap := loader.Snapshot()
	require.Len(t, snap.Chains, 1)
	assert.Equal(t, 7, snap.Version)

	// The file changes, but the unexpired cache still answers.
	require.NoError(t, os.Remove(path))
	snap = loader.Snapshot()
	assert.Equal(t, 7, snap.Version)
}

func TestLoaderInvalidateForcesReload(t *testing.T) {
	path := writeRegistry(t, &Snapshot{Version: 1, Chains: []Chain{}})
	loader := NewLoader(path, time.Hour)

	assert.Equal(t, 1, loader.Snapshot().Version)

	raw, err := json.Marshal(&Snapshot{Version: 2, Chains: []Chain{}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	loader.Invalidate()
	assert.Equal(t, 2, loader.Snapshot().Version)
}

func TestLoaderSnapshotIsIsolatedCopy(t *testing.T) {
	path := writeRegistry(t, &Snapshot{
		Version: 1,
		Chains: []Chain{{
			ChainID: 31337,
			Tokens:  []Token{{Symbol: "mUSD"}},
		}},
	})
	loader := NewLoader(path, time.Hour)

	first := loader.Snapshot()
	first.Chains[0].Tokens[0].Symbol = "HACKED"
	first.Chains[0].ChainID = 0

	second := loader.Snapshot()
	assert.Equal(t, "mUSD", second.Chains[0].Tokens[0].Symbol)
	assert.Equal(t, int64(31337), second.Chains[0].ChainID)
}

func TestSnapshotCloneCopiesLatestBlock(t *testing.T) {
	block := int64(42)
	snap := &Snapshot{Chains: []Chain{{
		NetworkHealth: NetworkHealth{RPCConnected: true, LatestBlock: &block},
	}}}

	clone := snap.Clone()
	*clone.Chains[0].NetworkHealth.LatestBlock = 99
	assert.Equal(t, int64(42), *snap.Chains[0].NetworkHealth.LatestBlock)
}

func TestChainLookups(t *testing.T) {
	snap := &Snapshot{Chains: []Chain{
		{ChainKey: "local", ChainID: 31337},
		{ChainKey: "sepolia", ChainID: 11155111},
	}}

	require.NotNil(t, snap.ChainByID(11155111))
	assert.Equal(t, "sepolia", snap.ChainByID(11155111).ChainKey)
	require.NotNil(t, snap.ChainByKey("local"))
	assert.Equal(t, int64(31337), snap.ChainByKey("local").ChainID)
	assert.Nil(t, snap.ChainByID(1))
	assert.Nil(t, snap.ChainByKey("mainnet"))
}
