// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugee

import (
	"bufio"
	"debug/elf"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/godzie44/BugStalker/bserrors"
)

// GlobalAddr is a file-relative address as it appears in an object file.
type GlobalAddr uint64

// RelocatedAddr is the runtime virtual address of the same instruction or
// datum in the debuggee (GlobalAddr + the owning object's load bias).
type RelocatedAddr uint64

// LoadedObject is one entry of the object catalog: the main executable or
// one shared library discovered through the dynamic-linker rendezvous
// structure (spec.md §3 "Object catalog").
type LoadedObject struct {
	Path     string
	LoadBias uint64
	Sections map[string]uint64 // section name -> file-relative (sh_addr)
	ELF      *elf.File
}

// Relocate converts a global (file-relative) address into the runtime
// address within this object.
func (o *LoadedObject) Relocate(addr GlobalAddr) RelocatedAddr {
	return RelocatedAddr(uint64(addr) + o.LoadBias)
}

// Unrelocate is the inverse of Relocate.
func (o *LoadedObject) Unrelocate(addr RelocatedAddr) GlobalAddr {
	return GlobalAddr(uint64(addr) - o.LoadBias)
}

// ObjectCatalog is the set of loaded objects for a debuggee: the main
// executable plus any shared libraries discovered via the dynamic
// linker's link_map chain.
type ObjectCatalog struct {
	Main    *LoadedObject
	Objects []*LoadedObject
}

// LoadMain opens and ELF-parses the main executable, recording its section
// map. The load bias is resolved once the process is running, via
// RefreshBias.
func LoadMain(path string) (*ObjectCatalog, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, bserrors.Wrapf(bserrors.DwarfMalformed, err, "open ELF %s", path)
	}
	obj := &LoadedObject{Path: path, Sections: make(map[string]uint64), ELF: f}
	for _, s := range f.Sections {
		obj.Sections[s.Name] = s.Addr
	}
	return &ObjectCatalog{Main: obj, Objects: []*LoadedObject{obj}}, nil
}

// RefreshBias sets the main executable's load bias from /proc/<pid>/maps:
// for a position-independent executable this is the first mapping's start
// address minus its file-relative counterpart; for a non-PIE binary the
// bias is always zero.
func (c *ObjectCatalog) RefreshBias(pid int) error {
	if c.Main.ELF.Type != elf.ET_DYN {
		c.Main.LoadBias = 0
		return nil
	}
	base, err := firstMappingBase(pid, c.Main.Path)
	if err != nil {
		return bserrors.Wrap(bserrors.TargetGone, err, "read /proc/<pid>/maps")
	}
	c.Main.LoadBias = base
	return nil
}

func firstMappingBase(pid int, path string) (uint64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	base := strings.TrimSuffix(path, "\x00")
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasSuffix(line, base) && !strings.Contains(line, base) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		parts := strings.SplitN(fields[0], "-", 2)
		addr, err := strconv.ParseUint(parts[0], 16, 64)
		if err != nil {
			continue
		}
		return addr, nil
	}
	return 0, fmt.Errorf("no mapping for %s in pid %d maps", path, pid)
}

// LinkMap is one entry of the dynamic linker's r_debug.link_map chain.
type LinkMap struct {
	Addr RelocatedAddr
	Name string
}

// ReadLinkMaps walks the in-memory link_map chain reachable from the
// DT_DEBUG entry of the main executable's .dynamic section, the same
// rendezvous protocol glibc's dynamic linker exposes to debuggers.
// Breakpoints pending on a not-yet-loaded shared library are re-resolved
// against this list at every stop the facade reports, other than process
// exit (spec.md §4.E "Pending breakpoints... are re-resolved on every
// shared-object load event").
func (c *ObjectCatalog) ReadLinkMaps(d *Debuggee) ([]LinkMap, error) {
	dynAddr, ok := c.Main.Sections[".dynamic"]
	if !ok {
		return nil, bserrors.New(bserrors.DwarfMissing, ".dynamic section not found")
	}
	addr := dynAddr + c.Main.LoadBias
	const dtDebug = 21
	const entrySize = 16 // Elf64_Dyn{ d_tag int64; d_val uint64 }
	for {
		buf := make([]byte, entrySize)
		if err := d.ReadMem(d.Pid, addr, buf); err != nil {
			return nil, err
		}
		tag := int64(le64(buf[0:8]))
		val := le64(buf[8:16])
		if tag == 0 {
			return nil, bserrors.New(bserrors.DwarfMissing, "DT_DEBUG not found")
		}
		if tag == dtDebug && val != 0 {
			return c.walkLinkMaps(d, val)
		}
		addr += entrySize
	}
}

// r_debug layout on linux/amd64: { int32 r_version; padding; uint64
// r_map; ... }. link_map layout: { uint64 l_addr; uint64 l_name; uint64
// l_ld; uint64 l_next; uint64 l_prev; ... }.
func (c *ObjectCatalog) walkLinkMaps(d *Debuggee, rDebugAddr uint64) ([]LinkMap, error) {
	buf := make([]byte, 16)
	if err := d.ReadMem(d.Pid, rDebugAddr, buf); err != nil {
		return nil, err
	}
	linkMapAddr := le64(buf[8:16])
	var out []LinkMap
	for linkMapAddr != 0 {
		lm := make([]byte, 40)
		if err := d.ReadMem(d.Pid, linkMapAddr, lm); err != nil {
			return nil, err
		}
		laddr := le64(lm[0:8])
		nameAddr := le64(lm[8:16])
		next := le64(lm[24:32])
		name, err := readCString(d, nameAddr)
		if err == nil {
			out = append(out, LinkMap{Addr: RelocatedAddr(laddr), Name: name})
		}
		linkMapAddr = next
	}
	return out, nil
}

func readCString(d *Debuggee, addr uint64) (string, error) {
	if addr == 0 {
		return "", nil
	}
	var sb strings.Builder
	buf := make([]byte, 1)
	for i := 0; i < 4096; i++ {
		if err := d.ReadMem(d.Pid, addr+uint64(i), buf); err != nil {
			return "", err
		}
		if buf[0] == 0 {
			break
		}
		sb.WriteByte(buf[0])
	}
	return sb.String(), nil
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
