package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadata_CloneForAndOverrides(t *testing.T) {
	common := &Metadata{
		ID:     7,
		Status: StatusProcessed,
		Owner:  CommonOwner{ContractID: 3},
		Fields: map[string]any{"name": "Base", "image": "ipfs://a"},
	}

	specified := common.CloneFor(SpecifiedOwner{ContractID: 3, TokenID: 11})
	require.Equal(t, MetadataSpecified, specified.Type())
	tokenID, ok := specified.TokenID()
	require.True(t, ok)
	require.Equal(t, int64(11), tokenID)
	require.Zero(t, specified.ID)

	changed := specified.ApplyOverrides(map[string]any{"name": "Token #11", "unknown": true})
	require.True(t, changed)
	require.Equal(t, "Token #11", specified.Fields["name"])
	require.NotContains(t, specified.Fields, "unknown")

	// the common record is untouched
	require.Equal(t, "Base", common.Fields["name"])
	_, ok = common.TokenID()
	require.False(t, ok)
}

func TestMetadata_ApplyOverridesIgnoresUnknownKeys(t *testing.T) {
	m := &Metadata{Owner: CommonOwner{ContractID: 1}, Fields: map[string]any{"a": 1}}
	require.False(t, m.ApplyOverrides(map[string]any{"b": 2}))
	require.Equal(t, map[string]any{"a": 1}, m.Fields)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("whitelist-add")
	require.NoError(t, err)
	require.Equal(t, KindWhitelistAdd, k)

	k, err = ParseKind(" Deploy ")
	require.NoError(t, err)
	require.Equal(t, KindDeploy, k)

	_, err = ParseKind("burn")
	require.Error(t, err)
}

func TestStatus_Terminal(t *testing.T) {
	require.False(t, StatusCreated.Terminal())
	require.False(t, StatusPending.Terminal())
	require.True(t, StatusProcessed.Terminal())
	require.True(t, StatusFailed.Terminal())
}
