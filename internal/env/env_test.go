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

import "testing"

func TestGetFreeSlotSkipsReserved(t *testing.T) {
	rf := NewRegFile()
	for i := 0; i < ArgRegCount; i++ {
		rf.Occupy(i, KindFixnum)
	}
	for i := NonVolStart; i <= NonVolEnd; i++ {
		rf.Occupy(i, KindFixnum)
	}
	got := rf.GetFreeSlot()
	if got != FirstSpill {
		t.Fatalf("expected first free slot to skip reserved 9-11 and land at %d, got %d", FirstSpill, got)
	}
}

func TestGetFreeSlotAfter(t *testing.T) {
	rf := NewRegFile()
	got := rf.GetFreeSlotAfter(2)
	if got != 2 {
		t.Fatalf("expected slot 2, got %d", got)
	}
}

func TestGetFreeSlotBeforeNeedsEviction(t *testing.T) {
	rf := NewRegFile()
	for i := 0; i < 3; i++ {
		rf.Occupy(i, KindFixnum)
	}
	hint := rf.GetFreeSlotBefore(3)
	if !hint.NeedsEvicted {
		t.Fatalf("expected eviction to be required when all slots below n are occupied")
	}
}

func TestReservedRegistersNeverReturned(t *testing.T) {
	for _, r := range []int{ClosureEnvReg, HeapPtrReg, RootStackReg} {
		if !IsReserved(r) {
			t.Errorf("expected register %d to be reserved", r)
		}
	}
	rf := NewRegFile()
	for i := 0; i < FirstSpill; i++ {
		if !IsReserved(i) {
			rf.Occupy(i, KindFixnum)
		}
	}
	got := rf.GetFreeSlot()
	if got < FirstSpill {
		t.Fatalf("expected spill slot >= %d, got %d", FirstSpill, got)
	}
}

func TestPushPopVariable(t *testing.T) {
	rf := NewRegFile()
	vt := NewVarTable()
	slot := rf.GetFreeSlotAfter(0)
	rf.Occupy(slot, KindFixnum)
	vt.PushVariable("x", KindFixnum, slot, false)

	v, ok := vt.FindActiveVariable("x")
	if !ok || v.SlotIndex != slot {
		t.Fatalf("expected to find x at slot %d, got %+v ok=%v", slot, v, ok)
	}

	vt.PopVariable(rf)
	if _, ok := vt.FindActiveVariable("x"); ok {
		t.Fatalf("expected x to be gone after pop")
	}
	if rf.Slot(slot).Kind != KindUnused {
		t.Fatalf("expected slot %d freed after pop", slot)
	}
}

func TestLatestWinsShadowing(t *testing.T) {
	vt := NewVarTable()
	vt.PushVariable("x", KindFixnum, 0, false)
	vt.PushVariable("x", KindBool, 1, false)
	v, ok := vt.FindActiveVariable("x")
	if !ok || v.SlotIndex != 1 {
		t.Fatalf("expected latest binding of x (slot 1), got %+v", v)
	}
}

func TestReassignAfterRetargetsVariable(t *testing.T) {
	rf := NewRegFile()
	vt := NewVarTable()
	slot := rf.GetFreeSlotAfter(0)
	rf.Occupy(slot, KindFixnum)
	vt.PushVariable("x", KindFixnum, slot, false)

	newSlot := vt.ReassignAfter(rf, slot, slot+1)
	if newSlot == slot {
		t.Fatalf("expected a different slot after reassignment")
	}
	v, _ := vt.FindActiveVariable("x")
	if v.SlotIndex != newSlot {
		t.Fatalf("expected variable retargeted to %d, got %d", newSlot, v.SlotIndex)
	}
	if rf.Slot(slot).Kind != KindUnused {
		t.Fatalf("expected original slot freed")
	}
}

func TestPushBoxedVariableMarksBoxed(t *testing.T) {
	vt := NewVarTable()
	vt.PushBoxedVariable("x", KindFixnum, 6)
	v, ok := vt.FindActiveVariable("x")
	if !ok || !v.Boxed || v.SlotIndex != 6 {
		t.Fatalf("expected boxed variable x at slot 6, got %+v (ok=%v)", v, ok)
	}
}
