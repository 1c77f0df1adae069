package db

import "testing"

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
