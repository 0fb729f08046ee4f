package dnsprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/renewd/internal/model"
)

func TestChallengeRecordName(t *testing.T) {
	assert.Equal(t, "_acme-challenge.ucm01.lab.example.com", ChallengeRecordName("ucm01.lab.example.com"))
	assert.Equal(t, "_acme-challenge.lab.example.com", ChallengeRecordName("*.lab.example.com"))
}

func TestFindZone_LongestSuffixMatch(t *testing.T) {
	zones := []string{"example.com", "lab.example.com"}
	zone, err := findZone("ucm01.lab.example.com", zones)
	require.NoError(t, err)
	assert.Equal(t, "lab.example.com", zone)
}

func TestFindZone_FallsBackToShorterZone(t *testing.T) {
	zones := []string{"example.com"}
	zone, err := findZone("ucm01.lab.example.com", zones)
	require.NoError(t, err)
	assert.Equal(t, "example.com", zone)
}

func TestFindZone_NotFound(t *testing.T) {
	_, err := findZone("ucm01.lab.example.com", []string{"other.net"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrZoneNotFound)
}

func TestRecordHostname(t *testing.T) {
	assert.Equal(t, "_acme-challenge.ucm01", recordHostname("ucm01.lab.example.com", "lab.example.com"))
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), "unknown", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDnsProvider)
}

func TestNew_Custom(t *testing.T) {
	p, err := New(context.Background(), Custom, nil)
	require.NoError(t, err)
	assert.IsType(t, &CustomAdapter{}, p)
}

func TestNew_MissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Cloudflare, map[string]string{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfigMissing)
}
