package docstore

import "testing"

func TestRebindNumbersPlaceholders(t *testing.T) {
	s := &sqlStore{numbered: true}
	got := s.rebind("DELETE FROM t WHERE a = ? AND b = ?")
	if got != "DELETE FROM t WHERE a = $1 AND b = $2" {
		t.Fatalf("unexpected query %q", got)
	}
	if plain := (&sqlStore{}).rebind("a = ?"); plain != "a = ?" {
		t.Fatalf("sqlite query should be unchanged, got %q", plain)
	}
}
