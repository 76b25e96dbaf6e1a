package sizing_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/sizing"
	"github.com/stretchr/testify/require"
)

func TestCatalogSizes(t *testing.T) {
	catalog := sizing.NewCatalog(false)
	guarded := sizing.NewCatalog(true)

	require.Equal(t, 512, catalog.Size(sizing.SizeClassTransferDescriptor))
	require.Equal(t, 528, guarded.Size(sizing.SizeClassTransferDescriptor))
	require.Equal(t, 2*sizing.SGEntrySize, catalog.Size(sizing.SizeClassSgList1))
	require.Equal(t, 33*sizing.SGEntrySize, catalog.Size(sizing.SizeClassSgList32))
	require.Equal(t, (sizing.MaxSGEntries+1)*sizing.SGEntrySize, catalog.Size(sizing.SizeClassSgListMax))
	require.Equal(t, 0, catalog.Size(sizing.SizeClass(42)))

	require.Equal(t, 32768, catalog.UsableBytes(sizing.PageTierStandard))
	require.Equal(t, 32768-sizing.PageHeaderBytes-sizing.PageFooterBytes, guarded.UsableBytes(sizing.PageTierStandard))
	require.Equal(t, 0, guarded.UsableBytes(sizing.PageTierAuto))

	require.Equal(t, 65536, catalog.BufferBytesPerPage(sizing.PageTierLarge))
	require.Equal(t, 65024, guarded.BufferBytesPerPage(sizing.PageTierLarge))
	require.Equal(t, 32256, guarded.BufferBytesPerPage(sizing.PageTierStandard))

	require.Equal(t, 64, catalog.PerPage(sizing.SizeClassTransferDescriptor, sizing.PageTierStandard))
	require.Equal(t, 62, guarded.PerPage(sizing.SizeClassTransferDescriptor, sizing.PageTierStandard))
	require.Equal(t, 0, catalog.PerPage(sizing.SizeClassBuffer16K, sizing.PageTierSmall))
}

func TestSizeClassQueries(t *testing.T) {
	require.True(t, sizing.SizeClassSgList128.IsSGList())
	require.False(t, sizing.SizeClassBuffer2K.IsSGList())
	require.True(t, sizing.SizeClassBuffer16K.IsBuffer())
	require.False(t, sizing.SizeClassVerifyRange.IsBuffer())

	require.Equal(t, 9, sizing.SizeClassSgList8.SGEntries())
	require.Equal(t, 0, sizing.SizeClassSubTransaction.SGEntries())

	require.Equal(t, "SizeClassVerifyCounters", sizing.SizeClassVerifyCounters.String())
	require.Equal(t, "unknown SizeClass", sizing.SizeClass(100).String())
	require.Equal(t, "PageTierLarge", sizing.PageTierLarge.String())
}

func TestSGCountIndex(t *testing.T) {
	testCases := []struct {
		entries  int
		expected sizing.SGIndex
	}{
		{entries: 0, expected: sizing.SGIndex1},
		{entries: 1, expected: sizing.SGIndex1},
		{entries: 2, expected: sizing.SGIndex8},
		{entries: 8, expected: sizing.SGIndex8},
		{entries: 9, expected: sizing.SGIndex32},
		{entries: 32, expected: sizing.SGIndex32},
		{entries: 33, expected: sizing.SGIndex128},
		{entries: 128, expected: sizing.SGIndex128},
		{entries: 129, expected: sizing.SGIndexMax},
		{entries: sizing.MaxSGEntries, expected: sizing.SGIndexMax},
	}

	for _, testCase := range testCases {
		index, err := sizing.SGCountIndex(testCase.entries)
		require.NoError(t, err)
		require.Equal(t, testCase.expected, index, "entries: %d", testCase.entries)
	}

	_, err := sizing.SGCountIndex(sizing.MaxSGEntries + 1)
	require.True(t, errors.Is(err, memutils.ValidationError))

	_, err = sizing.SGCountIndex(-1)
	require.True(t, errors.Is(err, memutils.ValidationError))

	require.Equal(t, 128, sizing.SGIndex128.MaxCount())
	require.Equal(t, sizing.SizeClassSgList32, sizing.SGIndex32.Class())

	index, err := sizing.SGIndexForClass(sizing.SizeClassSgListMax)
	require.NoError(t, err)
	require.Equal(t, sizing.SGIndexMax, index)

	_, err = sizing.SGIndexForClass(sizing.SizeClassTransferDescriptor)
	require.True(t, errors.Is(err, memutils.ValidationError))
}

func TestTierForPageBytes(t *testing.T) {
	tier, err := sizing.TierForPageBytes(65536)
	require.NoError(t, err)
	require.Equal(t, sizing.PageTierLarge, tier)

	_, err = sizing.TierForPageBytes(4096)
	require.True(t, errors.Is(err, memutils.ValidationError))

	_, err = sizing.TierForPageBytes(3000)
	require.True(t, errors.Is(err, memutils.ValidationError))
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))
}
