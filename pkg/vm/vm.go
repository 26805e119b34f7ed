// Package vm interprets stack-machine code produced by pcode.
//
// Registers: p is the next instruction, b the base of the current frame and
// t the first free stack cell. A frame holds its static link, dynamic link and
// return address at b, b+1 and b+2.
package vm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/ir"
	"github.com/xplshn/gpl0/pkg/pcode"
)

type Status int

const (
	Idle Status = iota
	Running
	AwaitingInput
	Halted
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case AwaitingInput:
		return "awaiting input"
	case Halted:
		return "halted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

var (
	ErrDivideByZero   = errors.New("division by zero")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrAddress        = errors.New("address out of range")
	ErrUnknownOp      = errors.New("unknown instruction")
	ErrNotWaiting     = errors.New("machine is not waiting for input")
)

// RuntimeError is a fault raised while executing the instruction at PC.
type RuntimeError struct {
	PC    int
	Instr pcode.Instruction
	Err   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at %d (%s): %v", e.PC, e.Instr, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

type Config struct {
	// StackSize is the number of cells; zero means config.DefaultStackSize.
	StackSize int
	// Output receives written values and status lines. Nil discards them.
	Output    io.Writer
	EchoInput bool
}

// ConfigFrom derives machine settings from the compiler configuration.
func ConfigFrom(cfg *config.Config, out io.Writer) Config {
	return Config{StackSize: cfg.StackSize, Output: out, EchoInput: cfg.IsFeatureEnabled(config.FeatEchoInput)}
}

// checkEvery is how many instructions run between context checks.
const checkEvery = 1024

type VM struct {
	code    []pcode.Instruction
	cfg     Config
	out     io.Writer
	stack   []int64
	p, b, t int
	status  Status
	err     error
	pending *pcode.Instruction
	values  []int64
}

func New(code []pcode.Instruction, cfg Config) *VM {
	if cfg.StackSize <= 0 {
		cfg.StackSize = config.DefaultStackSize
	}
	vm := &VM{code: code, cfg: cfg, out: cfg.Output, stack: make([]int64, cfg.StackSize)}
	if vm.out == nil {
		vm.out = io.Discard
	}
	return vm
}

// Reset clears the stack, registers and output history.
func (vm *VM) Reset() {
	clear(vm.stack)
	vm.p, vm.b, vm.t = 0, 0, 0
	vm.status, vm.err, vm.pending, vm.values = Idle, nil, nil, nil
}

func (vm *VM) Status() Status { return vm.status }

// Err returns the fault that moved the machine to Failed.
func (vm *VM) Err() error { return vm.err }

// Values returns every integer written so far.
func (vm *VM) Values() []int64 { return append([]int64(nil), vm.values...) }

// Registers returns p, b and t.
func (vm *VM) Registers() (p, b, t int) { return vm.p, vm.b, vm.t }

// Stack returns a copy of the live part of the stack, cells 0 through t-1.
func (vm *VM) Stack() []int64 { return append([]int64(nil), vm.stack[:vm.t]...) }

// Resume runs until the machine halts, needs input, or faults.
func (vm *VM) Resume() (Status, error) { return vm.resume(context.Background()) }

func (vm *VM) resume(ctx context.Context) (Status, error) {
	switch vm.status {
	case Halted, AwaitingInput:
		return vm.status, nil
	case Failed:
		return vm.status, vm.err
	}
	vm.status = Running
	for n := 0; vm.status == Running; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return vm.fail(err)
			}
		}
		if err := vm.step(); err != nil {
			return vm.fail(err)
		}
	}
	return vm.status, nil
}

func (vm *VM) fail(err error) (Status, error) {
	vm.status, vm.err, vm.pending = Failed, err, nil
	return Failed, err
}

// Provide completes a pending read with v.
func (vm *VM) Provide(v int64) error {
	if vm.status != AwaitingInput || vm.pending == nil {
		return ErrNotWaiting
	}
	in := *vm.pending
	switch in.Op {
	case pcode.RED:
		addr, err := vm.address(in.L, in.A)
		if err != nil {
			_, err = vm.fail(vm.fault(vm.p-1, in, err))
			return err
		}
		vm.stack[addr] = v
	default:
		if err := vm.push(v); err != nil {
			_, err = vm.fail(vm.fault(vm.p-1, in, err))
			return err
		}
	}
	vm.pending = nil
	vm.status = Running
	if vm.cfg.EchoInput {
		fmt.Fprintf(vm.out, "input: %d\n", v)
	}
	return nil
}

// Run drives the machine to completion, taking input from in whenever a read
// suspends it. Cancelling ctx leaves the machine Failed.
func (vm *VM) Run(ctx context.Context, in Input) error {
	for {
		st, err := vm.resume(ctx)
		if err != nil {
			return err
		}
		switch st {
		case Halted:
			return nil
		case AwaitingInput:
			if in == nil {
				_, err := vm.fail(errors.New("program reads input but none was supplied"))
				return err
			}
			v, err := in.Read(ctx)
			if err != nil {
				_, err = vm.fail(fmt.Errorf("read input: %w", err))
				return err
			}
			if err := vm.Provide(v); err != nil {
				return err
			}
		}
	}
}

func (vm *VM) fault(pc int, in pcode.Instruction, err error) error {
	return &RuntimeError{PC: pc, Instr: in, Err: err}
}

func (vm *VM) halt() {
	vm.status = Halted
	fmt.Fprint(vm.out, "program finished\n")
}

func (vm *VM) push(v int64) error {
	if vm.t >= len(vm.stack) {
		return ErrStackOverflow
	}
	vm.stack[vm.t] = v
	vm.t++
	return nil
}

func (vm *VM) pop() (int64, error) {
	if vm.t <= 0 {
		return 0, ErrStackUnderflow
	}
	vm.t--
	return vm.stack[vm.t], nil
}

// base follows l static links from the current frame.
func (vm *VM) base(l int64) (int, error) {
	b := vm.b
	for ; l > 0; l-- {
		if b < 0 || b >= len(vm.stack) {
			return 0, ErrAddress
		}
		b = int(vm.stack[b])
	}
	if b < 0 || b >= len(vm.stack) {
		return 0, ErrAddress
	}
	return b, nil
}

func (vm *VM) address(l, a int64) (int, error) {
	b, err := vm.base(l)
	if err != nil {
		return 0, err
	}
	addr := int64(b) + a
	if addr < 0 || addr >= int64(len(vm.stack)) {
		return 0, ErrAddress
	}
	return int(addr), nil
}

// step executes one instruction. On a fault p is left at the faulting
// instruction and the stack is unchanged.
func (vm *VM) step() error {
	if vm.p < 0 || vm.p >= len(vm.code) {
		vm.halt()
		return nil
	}
	pc := vm.p
	in := vm.code[pc]
	vm.p++
	if err := vm.exec(in); err != nil {
		vm.p = pc
		return vm.fault(pc, in, err)
	}
	return nil
}

func (vm *VM) exec(in pcode.Instruction) error {
	switch in.Op {
	case pcode.LIT:
		return vm.push(in.A)

	case pcode.OPR:
		return vm.opr(in)

	case pcode.LOD:
		addr, err := vm.address(in.L, in.A)
		if err != nil {
			return err
		}
		return vm.push(vm.stack[addr])

	case pcode.STO:
		addr, err := vm.address(in.L, in.A)
		if err != nil {
			return err
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.stack[addr] = v
		return nil

	case pcode.CAL:
		if vm.t+3 > len(vm.stack) {
			return ErrStackOverflow
		}
		link, err := vm.base(in.L)
		if err != nil {
			return err
		}
		vm.stack[vm.t] = int64(link)
		vm.stack[vm.t+1] = int64(vm.b)
		vm.stack[vm.t+2] = int64(vm.p)
		vm.b = vm.t
		vm.p = int(in.A)
		return nil

	case pcode.INT:
		nt := int64(vm.t) + in.A
		if nt < 0 {
			return ErrStackUnderflow
		}
		if nt > int64(len(vm.stack)) {
			return ErrStackOverflow
		}
		vm.t = int(nt)
		return nil

	case pcode.JMP:
		vm.p = int(in.A)
		return nil

	case pcode.JPC:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if v == 0 {
			vm.p = int(in.A)
		}
		return nil

	case pcode.RED:
		if _, err := vm.address(in.L, in.A); err != nil {
			return err
		}
		vm.suspend(in)
		return nil

	case pcode.WRT:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.values = append(vm.values, v)
		fmt.Fprintf(vm.out, "%d\n", v)
		return nil
	}
	return ErrUnknownOp
}

func (vm *VM) suspend(in pcode.Instruction) {
	vm.pending = &in
	vm.status = AwaitingInput
}

func (vm *VM) opr(in pcode.Instruction) error {
	switch in.A {
	case pcode.OprRet:
		if vm.b == 0 {
			vm.halt()
			return nil
		}
		if vm.b+2 >= len(vm.stack) {
			return ErrAddress
		}
		vm.t = vm.b
		vm.p = int(vm.stack[vm.t+2])
		vm.b = int(vm.stack[vm.t+1])
		return nil

	case pcode.OprNeg:
		if vm.t < 1 {
			return ErrStackUnderflow
		}
		vm.stack[vm.t-1] = -vm.stack[vm.t-1]
		return nil

	case pcode.OprOdd:
		if vm.t < 1 {
			return ErrStackUnderflow
		}
		vm.stack[vm.t-1] = boolValue(ir.Odd(vm.stack[vm.t-1]))
		return nil

	case pcode.OprRead:
		if vm.t >= len(vm.stack) {
			return ErrStackOverflow
		}
		vm.suspend(in)
		return nil
	}

	if !isBinary(in.A) {
		return ErrUnknownOp
	}
	if vm.t < 2 {
		return ErrStackUnderflow
	}
	// Both operands are inspected before anything is popped.
	x, y := vm.stack[vm.t-2], vm.stack[vm.t-1]
	var r int64
	switch in.A {
	case pcode.OprAdd:
		r = x + y
	case pcode.OprSub:
		r = x - y
	case pcode.OprMul:
		r = x * y
	case pcode.OprDiv:
		if y == 0 {
			return ErrDivideByZero
		}
		r = ir.FloorDiv(x, y)
	case pcode.OprEq:
		r = boolValue(x == y)
	case pcode.OprNeq:
		r = boolValue(x != y)
	case pcode.OprLt:
		r = boolValue(x < y)
	case pcode.OprGte:
		r = boolValue(x >= y)
	case pcode.OprGt:
		r = boolValue(x > y)
	case pcode.OprLte:
		r = boolValue(x <= y)
	}
	vm.t--
	vm.stack[vm.t-1] = r
	return nil
}

func isBinary(code int64) bool {
	switch code {
	case pcode.OprAdd, pcode.OprSub, pcode.OprMul, pcode.OprDiv,
		pcode.OprEq, pcode.OprNeq, pcode.OprLt, pcode.OprGte, pcode.OprGt, pcode.OprLte:
		return true
	}
	return false
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
