// Package parse implements the stack-based line parser driven by linked
// syntax definitions. Feeding lines through a State yields scope stack
// operations that a highlighter (or any other consumer) applies in order.
package parse

import (
	"errors"
	"fmt"

	"glint/internal/diag"
	"glint/internal/scope"
	"glint/internal/syntax"
)

// maxZeroWidthMatches is how many consecutive matches may neither consume
// input nor change the context stack before the offending pattern is
// abandoned for the rest of the line.
const maxZeroWidthMatches = 20

var (
	// ErrMissingMainContext means the whole context stack was popped.
	ErrMissingMainContext = errors.New("parse: main context was popped from the stack")
)

// Op is one emitted scope operation, located at a byte offset in the
// current line. Within a line, ops are ordered by (Offset, emission
// order).
type Op struct {
	Offset int
	Op     scope.StackOp
}

// State is the parser state between lines. Create one per file with
// NewState, call ParseLine for each line in order. States are cheap to
// Clone for caching and resuming.
type State struct {
	// IgnoreErrors keeps parsing when a pattern's regex fails, disabling
	// the pattern for the rest of the session.
	IgnoreErrors bool
	// Reporter receives non-fatal notifications (loop aborts, disabled
	// patterns). Nil means they are dropped.
	Reporter diag.Reporter

	stack     []frame
	firstLine bool
	// protoStarts tracks frames pushed by with_prototype rules;
	// prototypes below the most recent one are not consulted.
	protoStarts []int

	lineno int

	// session-wide caches
	disabled    map[*syntax.MatchPattern]bool
	backrefized map[string]*syntax.Regex
}

type frame struct {
	context    syntax.ContextID
	prototypes []syntax.ContextID
	captures   *syntax.CapturedInput
}

func (f *frame) equal(o *frame) bool {
	if f.context != o.context || len(f.prototypes) != len(o.prototypes) {
		return false
	}
	for i := range f.prototypes {
		if f.prototypes[i] != o.prototypes[i] {
			return false
		}
	}
	return true
}

// NewState starts a parse at the hidden start context of syn.
func NewState(syn *syntax.Syntax) (*State, error) {
	start, ok := syn.ContextIDs["__start"]
	if !ok {
		// grammars built by hand may only have main
		start, ok = syn.ContextIDs["main"]
		if !ok {
			return nil, fmt.Errorf("parse: syntax %q has no start context", syn.Name)
		}
	}
	return &State{
		stack:     []frame{{context: start}},
		firstLine: true,
	}, nil
}

// Clone returns an independent copy of the state, safe to use from
// another goroutine.
func (s *State) Clone() *State {
	cp := *s
	cp.stack = make([]frame, len(s.stack))
	copy(cp.stack, s.stack)
	cp.protoStarts = append([]int(nil), s.protoStarts...)
	if s.disabled != nil {
		cp.disabled = make(map[*syntax.MatchPattern]bool, len(s.disabled))
		for k, v := range s.disabled {
			cp.disabled[k] = v
		}
	}
	cp.backrefized = nil
	return &cp
}

// Equal compares the context stacks of two states; equal states produce
// identical output for identical input.
func (s *State) Equal(o *State) bool {
	if len(s.stack) != len(o.stack) {
		return false
	}
	for i := range s.stack {
		if !s.stack[i].equal(&o.stack[i]) {
			return false
		}
	}
	return true
}

// regexMatch is the winning candidate of one search round.
type regexMatch struct {
	region    *syntax.Region
	context   *syntax.Context
	patIndex  int
	fromProto bool
	wouldLoop bool
}

// lineSession holds the per-line caches and cursors.
type lineSession struct {
	line  *syntax.Line
	set   *syntax.Set
	cache map[*syntax.MatchPattern]searchEntry
	// loop guard: patterns abandoned for the rest of this line, and the
	// run of consecutive matches that made no progress
	abandoned    map[*syntax.MatchPattern]bool
	zeroWidthRun int

	ops []Op
}

type searchEntry struct {
	miss   bool
	region *syntax.Region
}

// ParseLine tokenizes one line, returning scope operations ordered by
// byte offset. The set must be the one that produced the state's syntax.
func (s *State) ParseLine(text string, set *syntax.Set) ([]Op, error) {
	if len(s.stack) == 0 {
		return nil, ErrMissingMainContext
	}
	s.lineno++

	ls := &lineSession{
		line:  syntax.NewLine(text),
		set:   set,
		cache: make(map[*syntax.MatchPattern]searchEntry, 64),
	}

	if s.firstLine {
		top := &s.stack[len(s.stack)-1]
		ctx, err := set.Context(top.context)
		if err != nil {
			return nil, err
		}
		for _, sc := range ctx.MetaContentScope {
			ls.ops = append(ls.ops, Op{0, scope.Push(sc)})
		}
		s.firstLine = false
	}

	start := 0
	nonConsumingPushAt := [2]int{-1, -1} // (rune pos, stack depth)
	for {
		more, err := s.parseNextToken(ls, &start, &nonConsumingPushAt)
		if err != nil {
			return s.drainOps(ls, start), err
		}
		if !more {
			break
		}
	}
	return ls.ops, nil
}

// drainOps balances pushes emitted in the failing line so partial output
// has no dangling scopes, then returns it alongside the error.
func (s *State) drainOps(ls *lineSession, at int) []Op {
	depth := 0
	for _, op := range ls.ops {
		switch op.Op.Kind {
		case scope.OpPush:
			depth++
		case scope.OpPop:
			depth -= op.Op.Count
			if depth < 0 {
				depth = 0
			}
		}
	}
	if depth > 0 {
		s.report(diag.Diagnostic{
			Severity: diag.SevWarning,
			Code:     diag.ParseStackDrained,
			Message:  fmt.Sprintf("drained %d open scopes after error", depth),
			Line:     s.lineno,
			Offset:   ls.line.ByteOffset(at),
		})
		ls.ops = append(ls.ops, Op{ls.line.ByteOffset(at), scope.Pop(depth)})
	}
	return ls.ops
}

func (s *State) report(d diag.Diagnostic) {
	if s.Reporter != nil {
		s.Reporter.Report(d)
	}
}

func (s *State) parseNextToken(ls *lineSession, start *int, nonConsumingPushAt *[2]int) (bool, error) {
	if len(s.stack) == 0 {
		return false, ErrMissingMainContext
	}
	checkPopLoop := nonConsumingPushAt[0] == *start && nonConsumingPushAt[1] == len(s.stack)

	// drop overlay windows that no longer reach into the stack
	for len(s.protoStarts) > 0 && s.protoStarts[len(s.protoStarts)-1] >= len(s.stack) {
		s.protoStarts = s.protoStarts[:len(s.protoStarts)-1]
	}

	best, err := s.findBestMatch(ls, *start, checkPopLoop)
	if err != nil {
		return false, err
	}
	if best == nil {
		return false, nil
	}

	if best.wouldLoop {
		// A non-consuming push followed by a non-consuming pop would land
		// us exactly where we started. Advance one character and retry,
		// the way Sublime Text does.
		if *start+1 < ls.line.RuneCount() {
			*start++
			return true, nil
		}
		return false, nil
	}

	_, matchEnd, _ := best.region.Pos(0)

	consuming := matchEnd > *start
	if !consuming {
		pat, err := best.context.MatchAt(best.patIndex)
		if err != nil {
			return false, err
		}
		if pat.Operation.Kind == syntax.OpPush || pat.Operation.Kind == syntax.OpEmbed {
			// remember where the non-consuming push happened so the next
			// pop can be checked for a loop
			*nonConsumingPushAt = [2]int{matchEnd, len(s.stack) + 1}
		}
	}

	prevDepth := len(s.stack)
	var prevTop frame
	if prevDepth > 0 {
		prevTop = s.stack[prevDepth-1]
	}

	*start = matchEnd

	if best.fromProto {
		// ignore with_prototypes below this frame once an overlay rule
		// pushes; record before the push so the window covers it
		s.protoStarts = append(s.protoStarts, len(s.stack))
	}

	levelContext, err := ls.set.Context(s.stack[len(s.stack)-1].context)
	if err != nil {
		return false, err
	}
	if err := s.execPattern(ls, best, levelContext); err != nil {
		return false, err
	}

	if !consuming && len(s.stack) == prevDepth &&
		(len(s.stack) == 0 || s.stack[len(s.stack)-1].equal(&prevTop)) {
		ls.zeroWidthRun++
		if ls.zeroWidthRun >= maxZeroWidthMatches {
			pat, _ := best.context.MatchAt(best.patIndex)
			if pat != nil {
				if ls.abandoned == nil {
					ls.abandoned = make(map[*syntax.MatchPattern]bool)
				}
				ls.abandoned[pat] = true
				delete(ls.cache, pat)
				s.report(diag.Diagnostic{
					Severity: diag.SevWarning,
					Code:     diag.ParseLoopAbandoned,
					Message:  fmt.Sprintf("pattern %q looped without progress; abandoned for this line", pat.Regex.Source()),
					Line:     s.lineno,
					Offset:   ls.line.ByteOffset(*start),
				})
			}
			ls.zeroWidthRun = 0
		}
	} else {
		ls.zeroWidthRun = 0
	}

	return true, nil
}

// findBestMatch walks the effective pattern list of the top frame: its
// own patterns, the context's prototype, then active with_prototype
// overlays from the bottom of the window upward. The winner is the match
// with the smallest start; ties go to the earliest pattern in that order.
func (s *State) findBestMatch(ls *lineSession, start int, checkPopLoop bool) (*regexMatch, error) {
	top := &s.stack[len(s.stack)-1]
	context, err := ls.set.Context(top.context)
	if err != nil {
		return nil, err
	}

	type chainEntry struct {
		ctx       *syntax.Context
		captures  *syntax.CapturedInput
		fromProto bool
	}
	chain := make([]chainEntry, 0, 4)
	chain = append(chain, chainEntry{ctx: context, captures: top.captures})
	if context.Prototype != nil {
		proto, err := ls.set.Context(*context.Prototype)
		if err != nil {
			return nil, err
		}
		chain = append(chain, chainEntry{ctx: proto})
	}
	protoStart := 0
	if len(s.protoStarts) > 0 {
		protoStart = s.protoStarts[len(s.protoStarts)-1]
	}
	for i := protoStart; i < len(s.stack); i++ {
		for _, id := range s.stack[i].prototypes {
			overlay, err := ls.set.Context(id)
			if err != nil {
				return nil, err
			}
			chain = append(chain, chainEntry{ctx: overlay, captures: s.stack[i].captures, fromProto: true})
		}
	}

	minStart := int(^uint(0) >> 1)
	var best *regexMatch
	popWouldLoop := false

	for _, entry := range chain {
		iter := ls.set.Patterns(entry.ctx)
		for {
			patCtx, patIndex, ok := iter.Next()
			if !ok {
				break
			}
			pat, err := patCtx.MatchAt(patIndex)
			if err != nil {
				return nil, err
			}
			if s.disabled[pat] || ls.abandoned[pat] {
				continue
			}
			region, err := s.search(ls, start, pat, entry.captures)
			if err != nil {
				var rerr *syntax.RegexError
				if s.IgnoreErrors && errors.As(err, &rerr) {
					if s.disabled == nil {
						s.disabled = make(map[*syntax.MatchPattern]bool)
					}
					s.disabled[pat] = true
					s.report(diag.Diagnostic{
						Severity: diag.SevWarning,
						Code:     diag.RegexPatternSkipped,
						Message:  fmt.Sprintf("pattern disabled: %v", err),
						Line:     s.lineno,
					})
					continue
				}
				return nil, err
			}
			if region == nil {
				continue
			}
			matchStart, matchEnd, _ := region.Pos(0)

			if matchStart < minStart || (matchStart == minStart && popWouldLoop) {
				minStart = matchStart

				consuming := matchEnd > start
				popWouldLoop = checkPopLoop && !consuming && pat.Operation.Kind == syntax.OpPop

				best = &regexMatch{
					region:    region,
					context:   patCtx,
					patIndex:  patIndex,
					fromProto: entry.fromProto,
					wouldLoop: popWouldLoop,
				}
				if matchStart == start && !popWouldLoop {
					// no later pattern can start earlier
					return best, nil
				}
			}
		}
	}
	return best, nil
}

// search finds the earliest match of pat at or after start, memoizing per
// line. A cached miss, or a cached hit starting at or after start, is
// reused; backref patterns bypass the cache since their compiled form
// depends on the frame's captures.
func (s *State) search(ls *lineSession, start int, pat *syntax.MatchPattern, captures *syntax.CapturedInput) (*syntax.Region, error) {
	canCache := !pat.HasBackrefs
	if canCache {
		if entry, ok := ls.cache[pat]; ok {
			if entry.miss {
				return nil, nil
			}
			if ms, _, _ := entry.region.Pos(0); ms >= start {
				return entry.region, nil
			}
		}
	}

	regex := pat.Regex
	if pat.HasBackrefs && captures != nil {
		regex = s.backrefRegex(pat, captures)
	}

	region := syntax.NewRegion()
	found, err := regex.Search(ls.line, start, region)
	if err != nil {
		return nil, err
	}
	if !found {
		if canCache {
			ls.cache[pat] = searchEntry{miss: true}
		}
		return nil, nil
	}
	if canCache {
		ls.cache[pat] = searchEntry{region: region}
	}
	return region, nil
}

// backrefRegex interpolates the ancestor captures into the pattern and
// memoizes the compiled result for the session.
func (s *State) backrefRegex(pat *syntax.MatchPattern, captures *syntax.CapturedInput) *syntax.Regex {
	source := pat.SubstituteBackrefs(captures)
	if re, ok := s.backrefized[source]; ok {
		return re
	}
	if s.backrefized == nil {
		s.backrefized = make(map[string]*syntax.Regex)
	}
	re := syntax.NewRegex(source)
	s.backrefized[source] = re
	return re
}

// execPattern emits the scope operations of the winning match and applies
// its context-stack effect.
func (s *State) execPattern(ls *lineSession, m *regexMatch, levelContext *syntax.Context) error {
	matchStart, matchEnd, _ := m.region.Pos(0)
	pat, err := m.context.MatchAt(m.patIndex)
	if err != nil {
		return err
	}

	if err := s.pushMetaOps(ls, true, matchStart, levelContext, &pat.Operation); err != nil {
		return err
	}
	for _, sc := range pat.Scope {
		ls.ops = append(ls.ops, Op{ls.line.ByteOffset(matchStart), scope.Push(sc)})
	}
	if len(pat.Captures) > 0 {
		s.pushCaptureOps(ls, m.region, pat.Captures)
	}
	if len(pat.Scope) > 0 {
		ls.ops = append(ls.ops, Op{ls.line.ByteOffset(matchEnd), scope.Pop(len(pat.Scope))})
	}
	if err := s.pushMetaOps(ls, false, matchEnd, levelContext, &pat.Operation); err != nil {
		return err
	}

	return s.performOp(ls, m.region, pat)
}

// pushCaptureOps emits capture scopes in position order. Captures can
// arrive in any order from the regex, so ops are sorted by (start,
// -length) with pops before pushes at equal offsets.
func (s *State) pushCaptureOps(ls *lineSession, region *syntax.Region, captures []syntax.CaptureMapping) {
	type entry struct {
		pos  int
		sub  int
		op   scope.StackOp
		boff int
	}
	var items []entry
	for _, cm := range captures {
		capStart, capEnd, ok := region.Pos(cm.Group)
		if !ok || capStart == capEnd {
			// empty captures would emit unsortable pops
			continue
		}
		for _, sc := range cm.Scopes {
			items = append(items, entry{
				pos: capStart, sub: -(capEnd - capStart),
				op: scope.Push(sc), boff: ls.line.ByteOffset(capStart),
			})
		}
		items = append(items, entry{
			pos: capEnd, sub: minInt,
			op: scope.Pop(len(cm.Scopes)), boff: ls.line.ByteOffset(capEnd),
		})
	}
	// stable insertion sort keeps declaration order on full ties
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			a, b := &items[j-1], &items[j]
			if a.pos < b.pos || (a.pos == b.pos && a.sub <= b.sub) {
				break
			}
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	for _, it := range items {
		ls.ops = append(ls.ops, Op{it.boff, it.op})
	}
}

const minInt = -int(^uint(0)>>1) - 1

// pushMetaOps handles the meta scope bookkeeping around a match. The set
// operation keeps the old context's content scope on the matched text and
// applies clear_scopes after the token, matching the reference engine's
// observed Sublime behavior rather than the documentation.
func (s *State) pushMetaOps(ls *lineSession, initial bool, index int, curContext *syntax.Context, op *syntax.MatchOperation) error {
	boff := ls.line.ByteOffset(index)
	switch op.Kind {
	case syntax.OpPop:
		if initial {
			if n := len(curContext.MetaContentScope); n > 0 {
				ls.ops = append(ls.ops, Op{boff, scope.Pop(n)})
			}
			return nil
		}
		if n := len(curContext.MetaScope); n > 0 {
			ls.ops = append(ls.ops, Op{boff, scope.Pop(n)})
		}
		// cleared scopes come back after the popping match's own scopes
		if curContext.ClearScopes != nil {
			ls.ops = append(ls.ops, Op{boff, scope.Restore()})
		}
		return nil

	case syntax.OpPush, syntax.OpSet, syntax.OpEmbed:
		isSet := op.Kind == syntax.OpSet
		if initial {
			if isSet && curContext.ClearScopes != nil {
				ls.ops = append(ls.ops, Op{boff, scope.Restore()})
			}
			for i := range op.Refs {
				ctx, err := op.Refs[i].Resolve(ls.set)
				if err != nil {
					return err
				}
				if !isSet && ctx.ClearScopes != nil {
					ls.ops = append(ls.ops, Op{boff, clearOp(*ctx.ClearScopes)})
				}
				for _, sc := range ctx.MetaScope {
					ls.ops = append(ls.ops, Op{boff, scope.Push(sc)})
				}
			}
			return nil
		}

		repush := isSet && (len(curContext.MetaScope) > 0 || len(curContext.MetaContentScope) > 0)
		for i := range op.Refs {
			ctx, err := op.Refs[i].Resolve(ls.set)
			if err != nil {
				return err
			}
			if len(ctx.MetaContentScope) > 0 || (isSet && ctx.ClearScopes != nil) {
				repush = true
			}
		}
		if !repush {
			return nil
		}

		// remove the meta scopes pushed before the token so content
		// scopes land in the right order
		numToPop := 0
		for i := range op.Refs {
			ctx, err := op.Refs[i].Resolve(ls.set)
			if err != nil {
				return err
			}
			numToPop += len(ctx.MetaScope)
		}
		if isSet {
			numToPop += len(curContext.MetaContentScope) + len(curContext.MetaScope)
		}
		if numToPop > 0 {
			ls.ops = append(ls.ops, Op{boff, scope.Pop(numToPop)})
		}
		for i := range op.Refs {
			ctx, err := op.Refs[i].Resolve(ls.set)
			if err != nil {
				return err
			}
			if isSet && ctx.ClearScopes != nil {
				ls.ops = append(ls.ops, Op{boff, clearOp(*ctx.ClearScopes)})
			}
			for _, sc := range ctx.MetaScope {
				ls.ops = append(ls.ops, Op{boff, scope.Push(sc)})
			}
			for _, sc := range ctx.MetaContentScope {
				ls.ops = append(ls.ops, Op{boff, scope.Push(sc)})
			}
		}
	}
	return nil
}

func clearOp(amount scope.ClearAmount) scope.StackOp {
	if amount.All {
		return scope.ClearAll()
	}
	return scope.ClearTopN(amount.TopN)
}

// performOp applies the match's context-stack effect.
func (s *State) performOp(ls *lineSession, region *syntax.Region, pat *syntax.MatchPattern) error {
	var refs []syntax.ContextReference
	var oldProtos []syntax.ContextID

	switch pat.Operation.Kind {
	case syntax.OpPush, syntax.OpEmbed:
		refs = pat.Operation.Refs
	case syntax.OpSet:
		refs = pat.Operation.Refs
		// a with_prototype stays active across set until the frame where
		// it was applied is popped
		if len(s.stack) > 0 {
			oldProtos = s.stack[len(s.stack)-1].prototypes
			s.stack = s.stack[:len(s.stack)-1]
		}
	case syntax.OpPop:
		for i := 0; i < pat.Operation.Count && len(s.stack) > 0; i++ {
			s.stack = s.stack[:len(s.stack)-1]
		}
		return nil
	default:
		return nil
	}

	for i := range refs {
		var protos []syntax.ContextID
		if i == 0 {
			protos = append(protos, oldProtos...)
		}
		if i == len(refs)-1 && pat.WithPrototype != nil {
			// the overlay applies only to the target of the push, the
			// topmost frame after all contexts are on
			if pat.WithPrototype.Kind != syntax.RefDirect {
				return fmt.Errorf("parse: unresolved with_prototype %s", pat.WithPrototype.String())
			}
			protos = append(protos, pat.WithPrototype.ID)
		}
		if refs[i].Kind != syntax.RefDirect {
			return fmt.Errorf("parse: unresolved context reference %s", refs[i].String())
		}
		id := refs[i].ID
		ctx, err := ls.set.Context(id)
		if err != nil {
			return err
		}

		usesBackrefs := ctx.UsesBackrefs
		for _, pid := range protos {
			if pctx, err := ls.set.Context(pid); err == nil && pctx.UsesBackrefs {
				usesBackrefs = true
			}
		}
		var captured *syntax.CapturedInput
		if usesBackrefs {
			captured = &syntax.CapturedInput{Runes: ls.line.Runes(), Region: region.Clone()}
		}
		s.stack = append(s.stack, frame{context: id, prototypes: protos, captures: captured})
	}
	return nil
}
