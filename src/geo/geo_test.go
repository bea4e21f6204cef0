package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountryCodeLocalNetwork(t *testing.T) {
	r, err := Open("", "")
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.10", "172.16.5.4", "::1", "fe80::1", "::ffff:192.168.1.1"} {
		code, err := r.CountryCode(ctx, ip)
		require.NoError(t, err)
		assert.Equal(t, LocalNetwork, code, ip)
	}
}

func TestCountryCodeWithoutDatabase(t *testing.T) {
	r, err := Open("", "")
	require.NoError(t, err)
	ctx := context.Background()

	code, err := r.CountryCode(ctx, "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "", code)

	code, err = r.CountryCode(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "", code)

	_, ok, err := r.ASN(ctx, "8.8.8.8")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenMissingDatabase(t *testing.T) {
	_, err := Open("/nonexistent/GeoLite2-Country.mmdb", "")
	assert.Error(t, err)
}

func TestCountryName(t *testing.T) {
	assert.Equal(t, "China", CountryName("CN"))
	assert.Equal(t, "Germany", CountryName("DE"))
	assert.Equal(t, "Local Network", CountryName(LocalNetwork))
	assert.Equal(t, "??", CountryName("??"))
}
