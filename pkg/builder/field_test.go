package builder

import "testing"

func TestField(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		field string
		want  string
	}{
		{"PostID", "post_id"},
		{"Removed", "removed"},
		{"c.PostID", "c.post_id"},
		{"Missing", "Missing"},
		{"post_id", "post_id"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if got := Field(f.comment, tt.field); got != tt.want {
				t.Errorf("Field(%q) = %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}
