package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Writer
	Writer = &buf
	t.Cleanup(func() { Writer = prev })
	return &buf
}

func TestTable(t *testing.T) {
	buf := capture(t)

	err := Table([]string{"TABLE", "LIVE"}, [][]string{{"post", "12"}, {"comment_reply", "3"}})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	col := strings.Index(lines[0], "LIVE")
	if strings.Index(lines[1], "12") != col || strings.Index(lines[2], "3") != col {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestCounts(t *testing.T) {
	buf := capture(t)

	Counts(map[string]int64{"post": 2, "comment": 5, "attachment": 1})
	got := buf.String()
	a, c, p := strings.Index(got, "attachment: 1"), strings.Index(got, "comment: 5"), strings.Index(got, "post: 2")
	if a < 0 || c < a || p < c {
		t.Errorf("counts not sorted by name: %q", got)
	}
}

func TestItem(t *testing.T) {
	buf := capture(t)

	Item(StatusHazard, "%s cascades into %s", "customer", "region")
	if !strings.Contains(buf.String(), "✗ customer cascades into region") {
		t.Errorf("got %q", buf.String())
	}
	if StatusLive.Icon() == StatusDeleted.Icon() {
		t.Error("live and deleted rows need different icons")
	}
}

func TestJSON(t *testing.T) {
	buf := capture(t)

	if err := JSON(map[string]int{"removed": 3}); err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if got["removed"] != 3 {
		t.Errorf("got %v", got)
	}
}
