// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arch

import "testing"

func TestUintN(t *testing.T) {
	cases := []struct {
		buf  []byte
		want uint64
	}{
		{[]byte{0x01}, 1},
		{[]byte{0x02, 0x00}, 2},
		{[]byte{0xff, 0xff, 0xff, 0xff}, 0xffffffff},
	}
	for _, c := range cases {
		if got := AMD64.UintN(c.buf); got != c.want {
			t.Errorf("UintN(%v) = %#x, want %#x", c.buf, got, c.want)
		}
	}
}

func TestUintptrRoundTrip(t *testing.T) {
	buf := make([]byte, AMD64.PointerSize)
	AMD64.PutUintptr(buf, 0xdeadbeefcafe)
	if got := AMD64.Uintptr(buf); got != 0xdeadbeefcafe {
		t.Errorf("Uintptr round-trip = %#x, want %#x", got, 0xdeadbeefcafe)
	}
}

func TestIntArgRegsOrder(t *testing.T) {
	want := []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
	if len(IntArgRegs) != len(want) {
		t.Fatalf("len(IntArgRegs) = %d, want %d", len(IntArgRegs), len(want))
	}
	for i, r := range want {
		if IntArgRegs[i] != r {
			t.Errorf("IntArgRegs[%d] = %q, want %q", i, IntArgRegs[i], r)
		}
	}
}
