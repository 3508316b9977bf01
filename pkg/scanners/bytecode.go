package scanners

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/core/vm"
)

// panicSelector is the 4-byte selector of Solidity's Panic(uint256). Compilers
// from 0.8.0 on emit it for checked arithmetic.
const panicSelector uint32 = 0x4e487b71

// Profile summarises the opcodes of a deployed contract.
type Profile struct {
	counts   map[vm.OpCode]int
	firstPC  map[vm.OpCode]int
	lastPC   map[vm.OpCode]int
	selector map[uint32]bool
	size     int
}

// Disassemble walks code instruction by instruction, skipping PUSH
// immediates, and records where each opcode occurs. A PUSH truncated by the
// end of code is recorded without its immediate.
func Disassemble(code []byte) *Profile {
	p := &Profile{
		counts:   make(map[vm.OpCode]int),
		firstPC:  make(map[vm.OpCode]int),
		lastPC:   make(map[vm.OpCode]int),
		selector: make(map[uint32]bool),
		size:     len(code),
	}

	for pc := 0; pc < len(code); pc++ {
		op := vm.OpCode(code[pc])
		if _, seen := p.firstPC[op]; !seen {
			p.firstPC[op] = pc
		}
		p.lastPC[op] = pc
		p.counts[op]++

		if !op.IsPush() {
			continue
		}
		n := int(op) - int(vm.PUSH0)
		if op == vm.PUSH4 && pc+4 < len(code) {
			p.selector[binary.BigEndian.Uint32(code[pc+1:pc+5])] = true
		}
		pc += n
	}
	return p
}

// Has reports whether op occurs at least once.
func (p *Profile) Has(op vm.OpCode) bool {
	return p.counts[op] > 0
}

// Count returns how many times op occurs.
func (p *Profile) Count(op vm.OpCode) int {
	return p.counts[op]
}

// HasAny reports whether any of ops occurs.
func (p *Profile) HasAny(ops ...vm.OpCode) bool {
	for _, op := range ops {
		if p.Has(op) {
			return true
		}
	}
	return false
}

// FirstPC returns the offset of the first occurrence of op.
func (p *Profile) FirstPC(op vm.OpCode) (int, bool) {
	pc, ok := p.firstPC[op]
	return pc, ok
}

// LastPC returns the offset of the last occurrence of op.
func (p *Profile) LastPC(op vm.OpCode) (int, bool) {
	pc, ok := p.lastPC[op]
	return pc, ok
}

// PushesSelector reports whether a PUSH4 loads sel.
func (p *Profile) PushesSelector(sel uint32) bool {
	return p.selector[sel]
}

// Size returns the code length in bytes.
func (p *Profile) Size() int {
	return p.size
}
