package scope

import (
	"errors"
	"slices"
	"strings"
)

// StackOp is a parser instruction mutating a Stack.
type StackOp struct {
	Kind  OpKind
	Scope Scope       // for OpPush
	Count int         // for OpPop
	Clear ClearAmount // for OpClear
}

// OpKind enumerates the stack operations a parser emits.
type OpKind uint8

const (
	// OpNoop does nothing; used as padding in op streams.
	OpNoop OpKind = iota
	// OpPush pushes one scope.
	OpPush
	// OpPop pops Count scopes.
	OpPop
	// OpClear temporarily removes scopes per Clear; Restore brings them back.
	OpClear
	// OpRestore reverts the most recent Clear.
	OpRestore
)

// ClearAmount says how much of the stack a Clear removes.
type ClearAmount struct {
	// All clears the entire stack when set; otherwise TopN applies.
	All bool
	// TopN clears at most the top n scopes.
	TopN int
}

// Push returns a push op for s.
func Push(s Scope) StackOp { return StackOp{Kind: OpPush, Scope: s} }

// Pop returns an op popping n scopes.
func Pop(n int) StackOp { return StackOp{Kind: OpPop, Count: n} }

// ClearTopN returns an op clearing the top n scopes.
func ClearTopN(n int) StackOp { return StackOp{Kind: OpClear, Clear: ClearAmount{TopN: n}} }

// ClearAll returns an op clearing the whole stack.
func ClearAll() StackOp { return StackOp{Kind: OpClear, Clear: ClearAmount{All: true}} }

// Restore returns an op undoing the latest Clear.
func Restore() StackOp { return StackOp{Kind: OpRestore} }

// Noop returns the do-nothing op.
func Noop() StackOp { return StackOp{Kind: OpNoop} }

// BasicOp is what a compound StackOp decomposes into: single pushes and pops.
// Hooks observe these.
type BasicOp struct {
	Push  bool
	Scope Scope // set for pushes
}

var (
	// ErrEmptyStack is returned when popping or clearing below the bottom.
	ErrEmptyStack = errors.New("scope: pop on empty stack")
	// ErrNoClearedScopes is returned for Restore without a matching Clear.
	ErrNoClearedScopes = errors.New("scope: restore without matching clear")
)

// Stack is an ordered sequence of scopes, most specific on top. It keeps a
// running hash of its contents so snapshots can key memoization tables,
// and a save-stack for Clear/Restore.
type Stack struct {
	scopes     []Scope
	hashes     []uint64 // hashes[i] = hash of scopes[:i+1]
	clearStack [][]Scope
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// StackFromString parses a whitespace separated list of scopes, bottom first.
func StackFromString(s string) (*Stack, error) {
	st := NewStack()
	for _, name := range strings.Fields(s) {
		sc, err := New(name)
		if err != nil {
			return nil, err
		}
		st.Push(sc)
	}
	return st, nil
}

// Push appends s on top.
func (st *Stack) Push(s Scope) {
	st.scopes = append(st.scopes, s)
	st.hashes = append(st.hashes, foldHash(st.topHash(len(st.hashes)), s))
}

func (st *Stack) topHash(depth int) uint64 {
	if depth == 0 {
		return seedHash()
	}
	return st.hashes[depth-1]
}

// Pop removes the top scope. Popping an empty stack is a no-op to mirror
// the forgiving slice semantics; Apply reports underflow instead.
func (st *Stack) Pop() {
	if len(st.scopes) == 0 {
		return
	}
	st.scopes = st.scopes[:len(st.scopes)-1]
	st.hashes = st.hashes[:len(st.hashes)-1]
}

// Len returns the stack height.
func (st *Stack) Len() int { return len(st.scopes) }

// IsEmpty reports whether the stack has no scopes.
func (st *Stack) IsEmpty() bool { return len(st.scopes) == 0 }

// Top returns the most specific scope. ok is false on an empty stack.
func (st *Stack) Top() (Scope, bool) {
	if len(st.scopes) == 0 {
		return Scope{}, false
	}
	return st.scopes[len(st.scopes)-1], true
}

// Scopes returns the backing slice, bottom to top. Callers must not keep
// it across mutations.
func (st *Stack) Scopes() []Scope { return st.scopes }

// BottomN returns the bottom n scopes.
func (st *Stack) BottomN(n int) []Scope { return st.scopes[:n] }

// Hash returns the running hash of the stack contents. Equal stacks hash
// equal; it is recomputable from scratch via HashOf.
func (st *Stack) Hash() uint64 {
	return st.topHash(len(st.hashes))
}

// HashOf computes the stack hash for an explicit scope slice.
func HashOf(scopes []Scope) uint64 {
	h := seedHash()
	for _, s := range scopes {
		h = foldHash(h, s)
	}
	return h
}

func seedHash() uint64 {
	return 0xcbf29ce484222325 // FNV-1a offset basis
}

func foldHash(h uint64, s Scope) uint64 {
	const prime = 0x100000001b3
	h ^= s.a
	h *= prime
	h ^= s.b
	h *= prime
	return h
}

// Clone returns an independent copy.
func (st *Stack) Clone() *Stack {
	cp := &Stack{
		scopes: slices.Clone(st.scopes),
		hashes: slices.Clone(st.hashes),
	}
	if st.clearStack != nil {
		cp.clearStack = make([][]Scope, len(st.clearStack))
		for i, c := range st.clearStack {
			cp.clearStack[i] = slices.Clone(c)
		}
	}
	return cp
}

// Equal reports value equality of the visible scopes and pending clears.
func (st *Stack) Equal(other *Stack) bool {
	if !slices.Equal(st.scopes, other.scopes) {
		return false
	}
	if len(st.clearStack) != len(other.clearStack) {
		return false
	}
	for i := range st.clearStack {
		if !slices.Equal(st.clearStack[i], other.clearStack[i]) {
			return false
		}
	}
	return true
}

// Apply mutates the stack according to op.
func (st *Stack) Apply(op StackOp) error {
	return st.ApplyWithHook(op, nil)
}

// ApplyWithHook mutates the stack and calls hook after every basic
// push/pop, passing the op and the stack contents after applying it.
// Returns ErrEmptyStack or ErrNoClearedScopes on underflow; the stack is
// left as it was at the point of failure.
func (st *Stack) ApplyWithHook(op StackOp, hook func(BasicOp, []Scope)) error {
	switch op.Kind {
	case OpNoop:
		return nil
	case OpPush:
		st.Push(op.Scope)
		if hook != nil {
			hook(BasicOp{Push: true, Scope: op.Scope}, st.scopes)
		}
		return nil
	case OpPop:
		for i := 0; i < op.Count; i++ {
			if len(st.scopes) == 0 {
				return ErrEmptyStack
			}
			st.Pop()
			if hook != nil {
				hook(BasicOp{}, st.scopes)
			}
		}
		return nil
	case OpClear:
		n := len(st.scopes)
		if op.Clear.All {
			n = len(st.scopes)
		} else if op.Clear.TopN < n {
			n = op.Clear.TopN
		}
		cleared := slices.Clone(st.scopes[len(st.scopes)-n:])
		st.clearStack = append(st.clearStack, cleared)
		for i := 0; i < n; i++ {
			st.Pop()
			if hook != nil {
				hook(BasicOp{}, st.scopes)
			}
		}
		return nil
	case OpRestore:
		if len(st.clearStack) == 0 {
			return ErrNoClearedScopes
		}
		cleared := st.clearStack[len(st.clearStack)-1]
		st.clearStack = st.clearStack[:len(st.clearStack)-1]
		for _, s := range cleared {
			st.Push(s)
			if hook != nil {
				hook(BasicOp{Push: true, Scope: s}, st.scopes)
			}
		}
		return nil
	}
	return nil
}

// String renders the scopes space separated, bottom first.
func (st *Stack) String() string {
	parts := make([]string, len(st.scopes))
	for i, s := range st.scopes {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}

// hashConsistent recomputes the whole prefix-hash chain; used by tests.
func (st *Stack) hashConsistent() bool {
	h := seedHash()
	for i, s := range st.scopes {
		h = foldHash(h, s)
		if st.hashes[i] != h {
			return false
		}
	}
	return true
}
