package enginetest

import "testing"

func TestOpenDBUsesSinglePool(t *testing.T) {
	db := OpenDB(t)
	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("max open = %d, want 1", got)
	}
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM users`); err != nil {
		t.Fatalf("users table: %v", err)
	}
}
