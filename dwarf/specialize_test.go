// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapacityUnknown(t *testing.T) {
	require.True(t, CapacityUnknown(^uint64(0)))
	require.False(t, CapacityUnknown(16))
	require.False(t, CapacityUnknown(0))
}

func TestNamePatternsCoverRecognizedContainers(t *testing.T) {
	seen := map[Recognition]bool{}
	for _, p := range namePatterns {
		seen[p.kind] = true
	}
	for _, want := range []Recognition{
		RecognizedVector, RecognizedDeque, RecognizedHashMap, RecognizedOrderedMap,
		RecognizedSet, RecognizedString, RecognizedSlice, RecognizedUniquePtr,
		RecognizedSharedPtr, RecognizedWeakPtr, RecognizedOption, RecognizedResult,
		RecognizedThreadLocal, RecognizedTime,
	} {
		require.True(t, seen[want], "no namePattern entry for recognition %v", want)
	}
}
