// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugee

import "golang.org/x/sys/unix"

// SignalDisposition classifies how a signal delivered to the debuggee is
// handled on the next resume, per spec.md §4.F.
type SignalDisposition int

const (
	PassThrough SignalDisposition = iota
	Swallowed
	StopWorthy
)

// SignalPolicy holds the per-signal overrides; the default for any signal
// absent from the map is PassThrough.
type SignalPolicy struct {
	overrides map[unix.Signal]SignalDisposition
}

func NewSignalPolicy() *SignalPolicy {
	return &SignalPolicy{overrides: make(map[unix.Signal]SignalDisposition)}
}

func (p *SignalPolicy) Set(sig unix.Signal, d SignalDisposition) {
	p.overrides[sig] = d
}

func (p *SignalPolicy) Disposition(sig unix.Signal) SignalDisposition {
	if sig == unix.SIGTRAP {
		// SIGTRAP is how breakpoints and single-steps report themselves;
		// it is always swallowed from the debuggee's perspective and
		// handled by the tracer instead of being redelivered.
		return Swallowed
	}
	if d, ok := p.overrides[sig]; ok {
		return d
	}
	return PassThrough
}

// DeliverySignal returns the signal number to pass to the next Cont/Step
// call for sig, honoring the policy.
func (p *SignalPolicy) DeliverySignal(sig unix.Signal) int {
	switch p.Disposition(sig) {
	case PassThrough:
		return int(sig)
	default:
		return 0
	}
}
