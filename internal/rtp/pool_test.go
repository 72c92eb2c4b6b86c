// SPDX-License-Identifier: Apache-2.0

package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateReturnsEvenPortWithRTCPPair(t *testing.T) {
	p := New(10000, 10010)
	pair, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, 10000, pair.RTP)
	require.Equal(t, 10001, pair.RTCP)
	require.Zero(t, pair.RTP%2)
}

// TestPoolOfSizeTwoYieldsOnePairThenExhausted implements spec §8: "RTP port pool of size 2 yields one
// pair then NoPortsAvailable."
func TestPoolOfSizeTwoYieldsOnePairThenExhausted(t *testing.T) {
	p := New(20000, 20001)
	_, err := p.Allocate()
	require.NoError(t, err)

	_, err = p.Allocate()
	require.Error(t, err)
	var pe *PoolError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, ErrNoPortsAvailable, pe.Kind)
}

func TestReleaseThenAllocateReturnsSamePair(t *testing.T) {
	p := New(30000, 30010)
	first, err := p.Allocate()
	require.NoError(t, err)
	second, err := p.Allocate()
	require.NoError(t, err)
	require.NotEqual(t, first.RTP, second.RTP)

	p.Release(first.RTP)
	third, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, first.RTP, third.RTP)
}

func TestOddMinRoundedUpToEven(t *testing.T) {
	p := New(10001, 10010)
	pair, err := p.Allocate()
	require.NoError(t, err)
	require.Equal(t, 10002, pair.RTP)
}
