package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitChain(t *testing.T) {
	leaf := "-----BEGIN CERTIFICATE-----\nAAA\n-----END CERTIFICATE-----\n"
	intermediate := "-----BEGIN CERTIFICATE-----\nBBB\n-----END CERTIFICATE-----\n"

	gotLeaf, gotIntermediates := SplitChain(leaf + intermediate)
	assert.Equal(t, leaf, gotLeaf)
	assert.Equal(t, []string{intermediate}, gotIntermediates)
}

func TestSplitChain_LeafOnly(t *testing.T) {
	leaf := "-----BEGIN CERTIFICATE-----\nAAA\n-----END CERTIFICATE-----\n"
	gotLeaf, gotIntermediates := SplitChain(leaf)
	assert.Equal(t, leaf, gotLeaf)
	assert.Empty(t, gotIntermediates)
}

func TestSplitChain_Empty(t *testing.T) {
	leaf, intermediates := SplitChain("")
	assert.Equal(t, "", leaf)
	assert.Nil(t, intermediates)
}

func TestContainsNormalized(t *testing.T) {
	existing := []string{"-----BEGIN CERTIFICATE-----\r\nAAA\r\n-----END CERTIFICATE-----\r\n"}
	assert.True(t, containsNormalized(existing, "-----BEGIN CERTIFICATE-----\nAAA\n-----END CERTIFICATE-----\n"))
	assert.False(t, containsNormalized(existing, "-----BEGIN CERTIFICATE-----\nBBB\n-----END CERTIFICATE-----\n"))
}
