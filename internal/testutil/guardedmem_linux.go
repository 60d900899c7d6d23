// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

//go:build linux && amd64

package testutil

import "syscall"

const cpuPageSize = 4 << 10

// GuardedMemory holds a byte slice placed immediately before an unmapped
// guard page, so that any read past its end faults instead of silently
// returning garbage.
type GuardedMemory struct {
	Data   []byte
	mapped []byte
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// GuardMemory copies userdata to the end of one or more mapped pages and
// unmaps the page immediately following it. Used by tokenizer tests to
// confirm that span-bounded reads (the "every token's span lies within the
// input buffer" invariant) never run past the input slice.
func GuardMemory(userdata []byte) (*GuardedMemory, error) {
	size := uint64(cap(userdata))
	rounded := alignUp(size, cpuPageSize)

	var gm GuardedMemory
	var err error

	gm.mapped, err = syscall.Mmap(0, 0, int(rounded+cpuPageSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_ANON|syscall.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}

	if err := syscall.Mprotect(gm.mapped[rounded:], syscall.PROT_NONE); err != nil {
		return nil, err
	}

	gm.Data = gm.mapped[rounded-size:]
	gm.Data = gm.Data[:size:size]
	copy(gm.Data, userdata)

	return &gm, nil
}

// Free releases the mapped pages back to the system.
func (gm *GuardedMemory) Free() error {
	var err error
	if gm.mapped != nil {
		err = syscall.Munmap(gm.mapped)
		gm.mapped = nil
		gm.Data = nil
	}
	return err
}
