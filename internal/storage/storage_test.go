package storage

import (
	"errors"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestSetGetDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
			}

			if err := s.Set("token", "abc"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set("token", "def"); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}

			v, err := s.Get("token")
			if err != nil || v != "def" {
				t.Fatalf("Get = %q, %v; want def", v, err)
			}

			if err := s.Delete("token"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get("token"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get after delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDeleteAll(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s.Set("a", "1")
			s.Set("b", "2")
			s.Set("c", "3")

			if err := s.DeleteAll("a", "b"); err != nil {
				t.Fatalf("DeleteAll: %v", err)
			}

			for _, k := range []string{"a", "b"} {
				if _, err := s.Get(k); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get(%s) = %v, want ErrNotFound", k, err)
				}
			}
			if v, err := s.Get("c"); err != nil || v != "3" {
				t.Errorf("Get(c) = %q, %v; want 3", v, err)
			}
		})
	}
}

func TestTakeDeliversOnce(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s.Set("form", `{"supplementName":"Magnesium"}`)

			v, err := Take(s, "form")
			if err != nil || v != `{"supplementName":"Magnesium"}` {
				t.Fatalf("first Take = %q, %v", v, err)
			}

			if _, err := Take(s, "form"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second Take = %v, want ErrNotFound", err)
			}
		})
	}
}
