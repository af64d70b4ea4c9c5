package scope

import (
	"testing"

	"pgregory.net/rapid"
)

func stackOf(t *testing.T, text string) *Stack {
	t.Helper()
	st, err := StackFromString(text)
	if err != nil {
		t.Fatalf("StackFromString(%q): %v", text, err)
	}
	return st
}

func TestApplyPushPop(t *testing.T) {
	st := NewStack()
	a := MustNew("source.test")
	b := MustNew("string.quoted")

	if err := st.Apply(Push(a)); err != nil {
		t.Fatal(err)
	}
	if err := st.Apply(Push(b)); err != nil {
		t.Fatal(err)
	}
	if st.Len() != 2 {
		t.Fatalf("Len = %d, want 2", st.Len())
	}
	if top, _ := st.Top(); top != b {
		t.Errorf("Top = %v, want %v", top, b)
	}
	if err := st.Apply(Pop(2)); err != nil {
		t.Fatal(err)
	}
	if !st.IsEmpty() {
		t.Errorf("stack should be empty")
	}
}

func TestPopUnderflow(t *testing.T) {
	st := stackOf(t, "a.b")
	err := st.Apply(Pop(2))
	if err != ErrEmptyStack {
		t.Fatalf("want ErrEmptyStack, got %v", err)
	}
	// the one scope that existed was consumed before the underflow was hit
	if st.Len() != 0 {
		t.Errorf("Len = %d after partial pop", st.Len())
	}
}

func TestRestoreWithoutClear(t *testing.T) {
	st := stackOf(t, "a.b c.d")
	if err := st.Apply(Restore()); err != ErrNoClearedScopes {
		t.Fatalf("want ErrNoClearedScopes, got %v", err)
	}
	if st.Len() != 2 {
		t.Errorf("restore error must not mutate the stack")
	}
}

func TestClearRestore(t *testing.T) {
	st := stackOf(t, "a b c d")
	if err := st.Apply(ClearTopN(2)); err != nil {
		t.Fatal(err)
	}
	if got := st.String(); got != "a b" {
		t.Errorf("after clear: %q", got)
	}
	if err := st.Apply(Push(MustNew("e"))); err != nil {
		t.Fatal(err)
	}
	if err := st.Apply(Restore()); err != nil {
		t.Fatal(err)
	}
	if got := st.String(); got != "a b e c d" {
		t.Errorf("after restore: %q", got)
	}
}

func TestClearAll(t *testing.T) {
	st := stackOf(t, "a b")
	if err := st.Apply(ClearAll()); err != nil {
		t.Fatal(err)
	}
	if !st.IsEmpty() {
		t.Fatalf("clear all left %q", st.String())
	}
	if err := st.Apply(Restore()); err != nil {
		t.Fatal(err)
	}
	if got := st.String(); got != "a b" {
		t.Errorf("after restore: %q", got)
	}
}

func TestHookSeesEveryBasicOp(t *testing.T) {
	st := NewStack()
	var pushes, pops int
	hook := func(op BasicOp, _ []Scope) {
		if op.Push {
			pushes++
		} else {
			pops++
		}
	}
	ops := []StackOp{
		Push(MustNew("a")),
		Push(MustNew("b.c")),
		Push(MustNew("d")),
		ClearTopN(2),
		Restore(),
		Pop(3),
	}
	for _, op := range ops {
		if err := st.ApplyWithHook(op, hook); err != nil {
			t.Fatal(err)
		}
	}
	if pushes != 5 || pops != 5 {
		t.Errorf("hook saw %d pushes, %d pops; want 5 and 5", pushes, pops)
	}
}

func TestHashTracksContents(t *testing.T) {
	a := stackOf(t, "x.y z")
	b := NewStack()
	b.Push(MustNew("x.y"))
	b.Push(MustNew("z"))
	if a.Hash() != b.Hash() {
		t.Errorf("equal stacks should hash equal")
	}
	b.Pop()
	if a.Hash() == b.Hash() {
		t.Errorf("different stacks should (almost surely) hash differently")
	}
	if a.Hash() != HashOf(a.Scopes()) {
		t.Errorf("running hash differs from recomputed hash")
	}
}

func TestStackOpsProperty(t *testing.T) {
	atom := rapid.StringMatching(`[a-z]{1,4}`)
	rapid.Check(t, func(t *rapid.T) {
		st := NewStack()
		n := rapid.IntRange(1, 40).Draw(t, "n")
		var clears int
		for i := 0; i < n; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0, 1:
				st.Push(MustNew(atom.Draw(t, "atom")))
			case 2:
				if st.Len() > 0 {
					if err := st.Apply(Pop(1)); err != nil {
						t.Fatal(err)
					}
				}
			case 3:
				if clears > 0 && rapid.Bool().Draw(t, "restore") {
					if err := st.Apply(Restore()); err != nil {
						t.Fatal(err)
					}
					clears--
				} else {
					amt := rapid.IntRange(0, st.Len()).Draw(t, "amt")
					if err := st.Apply(ClearTopN(amt)); err != nil {
						t.Fatal(err)
					}
					clears++
				}
			}
			if !st.hashConsistent() {
				t.Fatalf("hash chain inconsistent at step %d: %s", i, st.String())
			}
			if st.Hash() != HashOf(st.Scopes()) {
				t.Fatalf("running hash != recomputed at step %d", i)
			}
		}
		cp := st.Clone()
		if !st.Equal(cp) || st.Hash() != cp.Hash() {
			t.Fatalf("clone differs from original")
		}
	})
}
