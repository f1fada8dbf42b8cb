package markup

import "testing"

func TestConvertTables(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "grid embedded in text",
			input: "before\n| a | b |\n| - | - |\n| c | d |\nafter",
			want:  "before\n<pre>a │ b\n──┼──\nc │ d</pre>\nafter",
		},
		{
			name:  "no data row left alone",
			input: "| a | b |\n| - | - |\n",
			want:  "| a | b |\n| - | - |\n",
		},
		{
			name:  "not a table at all",
			input: "just | some | pipes",
			want:  "just | some | pipes",
		},
		{
			name:  "separator-like data rows abort conversion",
			input: "| a |\n| - |\n| - |",
			want:  "| a |\n| - |\n| - |",
		},
		{
			name:  "unicode cells line up by rune count",
			input: "| naïve | α |\n| - | - |\n| x | yy |",
			want:  "<pre>naïve │ α\n──────┼───\nx     │ yy</pre>",
		},
		{
			name:  "short row padded with empty cells",
			input: "| a | b | c |\n| - | - | - |\n| x |",
			want:  "<pre>a │ b │ c\n──┼───┼──\nx │   │</pre>",
		},
		{
			name:  "alignment colons in separator",
			input: "| l | r |\n|:--|--:|\n| 1 | 2 |",
			want:  "<pre>l │ r\n──┼──\n1 │ 2</pre>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertTables(tt.input, wrapPre)
			if got != tt.want {
				t.Errorf("convertTables(%q)\n  got  = %q\n  want = %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestConvertTablesFenceWrapper(t *testing.T) {
	input := "| a | b |\n| - | - |\n| c | d |"
	want := "```\na │ b\n──┼──\nc │ d\n```"
	got := convertTables(input, wrapFence)
	if got != want {
		t.Errorf("convertTables(%q)\n  got  = %q\n  want = %q", input, got, want)
	}
}

func TestColumnWidths(t *testing.T) {
	rows := [][]string{
		{"id", "name"},
		{"1234", "x"},
	}
	got := columnWidths(rows)
	want := []int{4, 4}
	if len(got) != len(want) {
		t.Fatalf("columnWidths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("columnWidths[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
