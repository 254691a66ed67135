package vm

import (
	"errors"
	"testing"
)

func TestElementStorageStartsNarrow(t *testing.T) {
	s := NewElementStorage(4)
	if s.Kind() != KindInt {
		t.Errorf("Expected int kind, got %v", s.Kind())
	}
	if s.Len() != 4 {
		t.Errorf("Expected length 4, got %d", s.Len())
	}
}

func TestElementStorageFastPathInt(t *testing.T) {
	s := NewElementStorage(2)
	if err := s.FastSet(0, FromInt(7)); err != nil {
		t.Fatalf("FastSet: %v", err)
	}
	v, err := s.FastGet(0)
	if err != nil {
		t.Fatalf("FastGet: %v", err)
	}
	if v.AsInt() != 7 {
		t.Errorf("Expected 7, got %v", v)
	}
}

func TestElementStorageFastSetWrongKindFails(t *testing.T) {
	s := NewElementStorage(2)
	err := s.FastSet(0, FromFloat(1.5))
	var sf *SpeculationFailure
	if !errors.As(err, &sf) {
		t.Fatalf("Expected representation failure, got %v", err)
	}
	if sf.Required == KindInt {
		t.Error("A failure must never demand the representation that just failed")
	}
	if s.Kind() != KindInt {
		t.Error("Failed fast path must leave storage untouched")
	}
}

func TestElementStorageFastSetOutOfCapacityFails(t *testing.T) {
	s := NewElementStorage(2)
	err := s.FastSet(5, FromInt(1))
	var sf *SpeculationFailure
	if !errors.As(err, &sf) {
		t.Fatalf("Expected representation failure, got %v", err)
	}
	if s.Len() != 2 {
		t.Error("Failed fast path must not grow the array")
	}
}

func TestElementStorageGenericSetWidens(t *testing.T) {
	s := NewElementStorage(3)
	for i := 0; i < 3; i++ {
		if err := s.Set(i, FromInt(int64(i+1))); err != nil {
			t.Fatal(err)
		}
	}

	// A float write widens to number storage, preserving every element.
	if err := s.Set(1, FromFloat(2.5)); err != nil {
		t.Fatal(err)
	}
	if s.Kind() != KindNumber {
		t.Errorf("Expected number kind, got %v", s.Kind())
	}
	if s.Get(0).AsFloat() != 1 || s.Get(1).AsFloat() != 2.5 || s.Get(2).AsFloat() != 3 {
		t.Errorf("Widening must preserve values: %v %v %v", s.Get(0), s.Get(1), s.Get(2))
	}

	// A string write widens to generic storage.
	if err := s.Set(0, FromString("a")); err != nil {
		t.Fatal(err)
	}
	if s.Kind() != KindObject {
		t.Errorf("Expected object kind, got %v", s.Kind())
	}
	if s.Get(2).AsFloat() != 3 {
		t.Errorf("Widening must preserve values, got %v", s.Get(2))
	}
}

func TestElementStorageNeverNarrows(t *testing.T) {
	s := NewElementStorage(1)
	s.Widen(KindObject)

	// Writing an int after widening must not narrow back.
	if err := s.Set(0, FromInt(1)); err != nil {
		t.Fatal(err)
	}
	if s.Kind() != KindObject {
		t.Errorf("Storage must not narrow, got %v", s.Kind())
	}
	s.Widen(KindInt)
	if s.Kind() != KindObject {
		t.Error("Narrowing requests must be ignored")
	}
}

func TestElementStorageIntSurvivesNumberRoundtrip(t *testing.T) {
	s := NewElementStorage(1)
	if err := s.Set(0, FromInt(42)); err != nil {
		t.Fatal(err)
	}
	s.Widen(KindNumber)

	v := s.Get(0)
	if !v.IsNumber() || v.AsFloat() != 42 {
		t.Errorf("Integral value must survive widening, got %v", v)
	}
}

func TestElementStorageGenericSetGrows(t *testing.T) {
	s := NewElementStorage(1)
	if err := s.Set(4, FromInt(9)); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 5 {
		t.Errorf("Expected length 5, got %d", s.Len())
	}
	if s.Get(4).AsInt() != 9 {
		t.Errorf("Expected 9, got %v", s.Get(4))
	}
	// Out-of-range reads are undefined, not errors.
	if !s.Get(10).IsUndefined() {
		t.Error("Out-of-range read must be undefined")
	}
}

func TestElementStorageNegativeIndex(t *testing.T) {
	s := NewElementStorage(1)
	if err := s.Set(-1, FromInt(1)); err == nil {
		t.Error("Negative index must be a range error")
	}
	var sf *SpeculationFailure
	if err := s.FastSet(-1, FromInt(1)); errors.As(err, &sf) {
		t.Error("Negative index is a hard error, not a representation failure")
	}
}
