/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package env

// Signature describes a lambda's arity for the variable table entry
// recorded when a (define (name args...) ...) form is classified.
type Signature struct {
	MinArgs int
	MaxArgs int // -1 means variadic
}

// Variable is one entry of the variable table.
type Variable struct {
	Name       string
	Kind       Kind
	Signature  *Signature // non-nil if this variable is a lambda
	IsConstant bool
	Active     bool
	// Boxed means SlotIndex holds a tagged pointer to an indirection
	// cell rather than the value itself: set for a lambda parameter or
	// let binding that some nested closure captures and reassigns with
	// set!, so every activation gets its own cell the closure can keep
	// sharing after the activation returns.
	Boxed bool
	// Exactly one of ConstIndex/SlotIndex is meaningful, selected by
	// IsConstant: constants reference the .data constant pool, mutable
	// variables reference the register/slot table.
	ConstIndex int
	SlotIndex  int
}

// VarTable is a stack of active lexical bindings, latest-wins on
// lookup (FindActiveVariable below; RFindActiveVariable searches
// oldest-first).
type VarTable struct {
	entries []Variable
}

func NewVarTable() *VarTable { return &VarTable{} }

// PushVariable enters a new binding at the top of scope.
func (vt *VarTable) PushVariable(name string, kind Kind, slot int, isConstant bool) {
	vt.entries = append(vt.entries, Variable{
		Name:       name,
		Kind:       kind,
		IsConstant: isConstant,
		SlotIndex:  slot,
		Active:     true,
	})
}

// PushBoxedVariable enters a binding whose slot holds a pointer to an
// indirection cell (see Variable.Boxed) rather than the value itself.
func (vt *VarTable) PushBoxedVariable(name string, kind Kind, slot int) {
	vt.entries = append(vt.entries, Variable{
		Name:      name,
		Kind:      kind,
		Boxed:     true,
		SlotIndex: slot,
		Active:    true,
	})
}

// PushConstant enters a compile-time constant binding referencing the
// .data constant pool at constIndex.
func (vt *VarTable) PushConstant(name string, kind Kind, constIndex int) {
	vt.entries = append(vt.entries, Variable{
		Name:       name,
		Kind:       kind,
		IsConstant: true,
		ConstIndex: constIndex,
		Active:     true,
	})
}

// PushFunction enters a lambda binding with a known signature.
func (vt *VarTable) PushFunction(name string, sig Signature, slot int) {
	vt.entries = append(vt.entries, Variable{
		Name:      name,
		Kind:      KindPointer,
		Signature: &sig,
		SlotIndex: slot,
		Active:    true,
	})
}

// PopVariable removes the most recently pushed binding, freeing its
// slot in rf if it was mutable.
func (vt *VarTable) PopVariable(rf *RegFile) {
	if len(vt.entries) == 0 {
		return
	}
	top := vt.entries[len(vt.entries)-1]
	vt.entries = vt.entries[:len(vt.entries)-1]
	if !top.IsConstant && rf != nil {
		rf.Free(top.SlotIndex)
	}
}

// FindActiveVariable is the latest-wins forward lookup.
func (vt *VarTable) FindActiveVariable(name string) (Variable, bool) {
	for i := len(vt.entries) - 1; i >= 0; i-- {
		if vt.entries[i].Active && vt.entries[i].Name == name {
			return vt.entries[i], true
		}
	}
	return Variable{}, false
}

// RFindActiveVariable searches from the oldest binding forward instead
// of latest-wins backward; useful when resolving shadowing explicitly
// against an outer scope snapshot.
func (vt *VarTable) RFindActiveVariable(name string) (Variable, bool) {
	for i := 0; i < len(vt.entries); i++ {
		if vt.entries[i].Active && vt.entries[i].Name == name {
			return vt.entries[i], true
		}
	}
	return Variable{}, false
}

// ReassignAfter copies the logical occupant of slot i into a freshly
// allocated slot >= n and clears i, retargeting any variable-table
// entry that pointed at i. Used by the call-argument ordering resolver
// to evict a slot whose current occupant is still needed.
func (vt *VarTable) ReassignAfter(rf *RegFile, i, n int) int {
	newSlot := rf.GetFreeSlotAfter(n)
	rf.Occupy(newSlot, rf.Slot(i).Kind)
	rf.Free(i)
	for idx := range vt.entries {
		if !vt.entries[idx].IsConstant && vt.entries[idx].SlotIndex == i {
			vt.entries[idx].SlotIndex = newSlot
		}
	}
	return newSlot
}

// Snapshot returns the number of currently active entries, for scope
// save/restore around lambda bodies; every entry pushed before the mark
// stays visible until TruncateTo.
func (vt *VarTable) Snapshot() int { return len(vt.entries) }

// TruncateTo removes entries back down to a previous Snapshot mark,
// without touching the register file (used when discarding a child
// environment wholesale on lambda exit).
func (vt *VarTable) TruncateTo(mark int) {
	if mark < len(vt.entries) {
		vt.entries = vt.entries[:mark]
	}
}

// ActiveConstants returns the constants currently visible, which is
// what a fresh child environment inherits when entering a lambda.
func (vt *VarTable) ActiveConstants() []Variable {
	var out []Variable
	for _, v := range vt.entries {
		if v.IsConstant && v.Active {
			out = append(out, v)
		}
	}
	return out
}
