// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugee

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSigtrapAlwaysSwallowedRegardlessOfOverride(t *testing.T) {
	p := NewSignalPolicy()
	p.Set(unix.SIGTRAP, StopWorthy)
	require.Equal(t, Swallowed, p.Disposition(unix.SIGTRAP))
}

func TestUnconfiguredSignalPassesThrough(t *testing.T) {
	p := NewSignalPolicy()
	require.Equal(t, PassThrough, p.Disposition(unix.SIGUSR1))
}

func TestOverrideHonored(t *testing.T) {
	p := NewSignalPolicy()
	p.Set(unix.SIGINT, StopWorthy)
	require.Equal(t, StopWorthy, p.Disposition(unix.SIGINT))
}

func TestDeliverySignalZeroUnlessPassThrough(t *testing.T) {
	p := NewSignalPolicy()
	p.Set(unix.SIGINT, StopWorthy)
	require.Equal(t, 0, p.DeliverySignal(unix.SIGINT))
	require.Equal(t, int(unix.SIGUSR1), p.DeliverySignal(unix.SIGUSR1))
	require.Equal(t, 0, p.DeliverySignal(unix.SIGTRAP))
}
