package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadIDRoundTrip(t *testing.T) {
	id := ThreadID("camp-1", "austin", "prov-1")
	assert.Equal(t, "camp-1#austin#prov-1", id)

	campaign, market, provider, err := ParseThreadID(id)
	require.NoError(t, err)
	assert.Equal(t, "camp-1", campaign)
	assert.Equal(t, "austin", market)
	assert.Equal(t, "prov-1", provider)
}

func TestParseThreadIDRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "camp-1", "camp-1#austin", "#austin#prov", "camp-1##prov"} {
		_, _, _, err := ParseThreadID(id)
		assert.Error(t, err, "id %q", id)
	}
}
