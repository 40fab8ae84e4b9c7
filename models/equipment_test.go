package models

import (
	"testing"
)

func intPtr(v int) *int {
	return &v
}

func TestBuildEquipmentOptionsFlattensDepthFirst(t *testing.T) {
	all := []Equipment{
		{ID: 1, Name: "Line A"},
		{ID: 2, Name: "Press", ParentId: intPtr(1)},
		{ID: 3, Name: "Conveyor", ParentId: intPtr(1)},
		{ID: 4, Name: "Motor", ParentId: intPtr(3)},
		{ID: 5, Name: "Line B"},
	}

	options := BuildEquipmentOptions(all, 0)
	if len(options) != 5 {
		t.Fatalf("expected 5 options, got %d", len(options))
	}

	wantOrder := []int{1, 3, 4, 2, 5}
	for i, want := range wantOrder {
		if options[i].ID != want {
			t.Fatalf("position %d: expected id %d, got %d", i, want, options[i].ID)
		}
	}

	if options[0].Depth != 0 || options[1].Depth != 1 || options[2].Depth != 2 {
		t.Fatalf("unexpected depths: %d %d %d", options[0].Depth, options[1].Depth, options[2].Depth)
	}
	if options[0].DisplayLabel != "Line A" {
		t.Fatalf("root label should not be indented, got %q", options[0].DisplayLabel)
	}
	if options[2].DisplayLabel == options[2].Name {
		t.Fatalf("nested label should be indented, got %q", options[2].DisplayLabel)
	}
}

func TestBuildEquipmentOptionsExcludesSubtree(t *testing.T) {
	all := []Equipment{
		{ID: 1, Name: "Line A"},
		{ID: 2, Name: "Press", ParentId: intPtr(1)},
		{ID: 3, Name: "Die set", ParentId: intPtr(2)},
		{ID: 4, Name: "Line B"},
	}

	options := BuildEquipmentOptions(all, 2)
	if len(options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(options))
	}
	for _, option := range options {
		if option.ID == 2 || option.ID == 3 {
			t.Fatalf("excluded subtree leaked id %d", option.ID)
		}
	}
}

func TestBuildEquipmentOptionsSurvivesParentCycle(t *testing.T) {
	all := []Equipment{
		{ID: 1, Name: "A", ParentId: intPtr(2)},
		{ID: 2, Name: "B", ParentId: intPtr(1)},
		{ID: 3, Name: "Root"},
	}

	options := BuildEquipmentOptions(all, 0)
	if len(options) != 1 {
		t.Fatalf("cycle members have no root path, expected 1 option, got %d", len(options))
	}
	if options[0].ID != 3 {
		t.Fatalf("expected id 3, got %d", options[0].ID)
	}
}

func TestEquipmentDescendantIdsStopsOnCycle(t *testing.T) {
	all := []Equipment{
		{ID: 1, Name: "A"},
		{ID: 2, Name: "B", ParentId: intPtr(1)},
		{ID: 3, Name: "C", ParentId: intPtr(2)},
		{ID: 4, Name: "Loop", ParentId: intPtr(4)},
	}

	ids := equipmentDescendantIds(all, 1)
	if len(ids) != 2 {
		t.Fatalf("expected 2 descendants, got %v", ids)
	}

	ids = equipmentDescendantIds(all, 4)
	if len(ids) != 0 {
		t.Fatalf("self-parent must not recurse, got %v", ids)
	}
}
