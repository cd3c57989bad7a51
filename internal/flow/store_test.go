package flow

import (
	"slices"
	"testing"
)

func TestStore_MissingKeyReturnsDefault(t *testing.T) {
	s := NewStore()
	if got := s.Get("nope", "fallback"); got != "fallback" {
		t.Errorf("Get(missing) = %v, want fallback", got)
	}
}

func TestStore_TypedKeys(t *testing.T) {
	s := NewStore()
	count := NewKey[int]("count")
	names := NewKey[[]string]("names")

	if got := Get(s, count); got != 0 {
		t.Errorf("Get(count) before Set = %d", got)
	}
	if got := GetOr(s, count, 7); got != 7 {
		t.Errorf("GetOr(count, 7) = %d", got)
	}

	Set(s, count, 3)
	Set(s, names, []string{"a", "b"})

	if got := Get(s, count); got != 3 {
		t.Errorf("Get(count) = %d, want 3", got)
	}
	if got := Get(s, names); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Get(names) = %v", got)
	}
	if got := s.Keys(); !slices.Equal(got, []string{"count", "names"}) {
		t.Errorf("Keys() = %v", got)
	}
}

func TestStore_TypeMismatchIsTreatedAsMissing(t *testing.T) {
	s := NewStore()
	s.Set("count", "three")
	count := NewKey[int]("count")

	if _, ok := Lookup(s, count); ok {
		t.Error("Lookup reported a string as an int")
	}
	if got := GetOr(s, count, 9); got != 9 {
		t.Errorf("GetOr = %d, want 9", got)
	}
}

func TestStore_VersionIncrementsOnSet(t *testing.T) {
	s := NewStore()
	if v := s.Version(); v != 0 {
		t.Errorf("fresh Version() = %d", v)
	}
	s.Set("a", 1)
	s.Set("a", 2)
	if v := s.Version(); v != 2 {
		t.Errorf("Version() = %d, want 2", v)
	}
	if got := s.Get("a", nil); got != 2 {
		t.Errorf("Get(a) = %v, want 2", got)
	}
}
