// Package scanners provides the built-in vulnerability scanners.
//
// Every built-in scanner fetches the deployed bytecode of the address through
// a provider.ContractSource and applies an opcode heuristic to it. Findings
// start with a severity word ("Critical:", "High:", "Medium:", "Low:" or
// "Info:") so the security analyzer can rank them.
package scanners

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/scrutinychain/sdk/pkg/chain"
	"github.com/scrutinychain/sdk/pkg/core"
	"github.com/scrutinychain/sdk/pkg/errors"
	"github.com/scrutinychain/sdk/pkg/provider"
)

// Built-in scanner names.
const (
	NameReentrancy      = "reentrancy"
	NameSelfDestruct    = "selfdestruct"
	NameDelegateCall    = "delegatecall"
	NameTxOrigin        = "tx-origin"
	NameIntegerOverflow = "integer-overflow"
	NameAccessControl   = "access-control"
)

// CheckFunc inspects a contract's opcode profile and returns findings.
type CheckFunc func(address chain.Address, p *Profile) []string

// BytecodeScanner is a core.Scanner that runs a CheckFunc over the code
// deployed at the scanned address.
type BytecodeScanner struct {
	name   string
	source provider.ContractSource
	check  CheckFunc
}

// NewBytecodeScanner creates a scanner named name.
func NewBytecodeScanner(name string, source provider.ContractSource, check CheckFunc) *BytecodeScanner {
	return &BytecodeScanner{name: name, source: source, check: check}
}

// Name returns the scanner name.
func (s *BytecodeScanner) Name() string {
	return s.name
}

// Scan fetches the contract and runs the check. An address without code
// yields a single Info finding; any other provider error is returned.
func (s *BytecodeScanner) Scan(ctx context.Context, address chain.Address) ([]string, error) {
	contract, err := s.source.GetContract(ctx, address)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return []string{fmt.Sprintf("Info: no contract code at %s", address)}, nil
		}
		return nil, errors.Wrap(err, "scanners."+s.name)
	}
	return s.check(address, Disassemble(contract.Bytecode)), nil
}

// =============================================================================
// Presets
// =============================================================================

// Reentrancy flags storage writes that follow an external call.
func Reentrancy(source provider.ContractSource) *BytecodeScanner {
	return NewBytecodeScanner(NameReentrancy, source, checkReentrancy)
}

// SelfDestruct flags contracts that can remove themselves.
func SelfDestruct(source provider.ContractSource) *BytecodeScanner {
	return NewBytecodeScanner(NameSelfDestruct, source, checkSelfDestruct)
}

// DelegateCall flags contracts that execute foreign code in their own context.
func DelegateCall(source provider.ContractSource) *BytecodeScanner {
	return NewBytecodeScanner(NameDelegateCall, source, checkDelegateCall)
}

// TxOrigin flags contracts that read tx.origin.
func TxOrigin(source provider.ContractSource) *BytecodeScanner {
	return NewBytecodeScanner(NameTxOrigin, source, checkTxOrigin)
}

// IntegerOverflow flags arithmetic in code built without checked arithmetic.
func IntegerOverflow(source provider.ContractSource) *BytecodeScanner {
	return NewBytecodeScanner(NameIntegerOverflow, source, checkIntegerOverflow)
}

// AccessControl flags privileged opcodes in code that never reads msg.sender.
func AccessControl(source provider.ContractSource) *BytecodeScanner {
	return NewBytecodeScanner(NameAccessControl, source, checkAccessControl)
}

// =============================================================================
// Checks
// =============================================================================

func checkReentrancy(address chain.Address, p *Profile) []string {
	firstCall, ok := p.FirstPC(vm.CALL)
	if !ok {
		return nil
	}
	lastStore, ok := p.LastPC(vm.SSTORE)
	if !ok || lastStore < firstCall {
		return []string{"Info: external calls present, no state written after them"}
	}
	return []string{
		fmt.Sprintf("High: possible reentrancy in %s, storage is written after an external call", address),
		"Low: consider the checks-effects-interactions pattern",
	}
}

func checkSelfDestruct(address chain.Address, p *Profile) []string {
	if !p.Has(vm.SELFDESTRUCT) {
		return nil
	}
	return []string{fmt.Sprintf("High: %s can self-destruct", address)}
}

func checkDelegateCall(address chain.Address, p *Profile) []string {
	n := p.Count(vm.DELEGATECALL)
	if n == 0 {
		return nil
	}
	return []string{fmt.Sprintf("Medium: %d delegatecall site(s) execute external code with this contract's storage", n)}
}

func checkTxOrigin(address chain.Address, p *Profile) []string {
	if !p.Has(vm.ORIGIN) {
		return nil
	}
	return []string{"Medium: tx.origin is read, authorization by origin can be phished"}
}

func checkIntegerOverflow(address chain.Address, p *Profile) []string {
	if !p.HasAny(vm.ADD, vm.SUB, vm.MUL, vm.EXP) {
		return nil
	}
	if p.PushesSelector(panicSelector) {
		return nil
	}
	return []string{
		"Medium: possible integer overflow in unchecked arithmetic",
		"Info: consider compiling with Solidity 0.8 or using SafeMath",
	}
}

func checkAccessControl(address chain.Address, p *Profile) []string {
	if !p.HasAny(vm.SELFDESTRUCT, vm.DELEGATECALL) {
		return nil
	}
	if p.Has(vm.CALLER) {
		return nil
	}
	return []string{"Critical: missing access control, privileged opcodes are reachable without a msg.sender check"}
}

var _ core.Named = (*BytecodeScanner)(nil)
var _ core.Scanner = (*BytecodeScanner)(nil)
