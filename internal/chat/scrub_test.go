package chat

import "testing"

func TestScrub(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		dropFiller bool
		want       string
	}{
		{
			name: "balanced block removed",
			in:   "<think>erst nachdenken</think>Hallo Marlon!",
			want: "Hallo Marlon!",
		},
		{
			name: "multiple blocks removed",
			in:   "<think>a</think>Erster Teil. <think>b</think>Zweiter Teil.",
			want: "Erster Teil. Zweiter Teil.",
		},
		{
			name: "multiline block removed",
			in:   "<think>\nline one\nline two\n</think>\nAntwort.",
			want: "Antwort.",
		},
		{
			name: "case insensitive tags",
			in:   "<THINK>laut denken</THINK>Ergebnis",
			want: "Ergebnis",
		},
		{
			name: "unclosed opener truncates",
			in:   "Die Antwort ist 42.<think>aber vielleicht doch",
			want: "Die Antwort ist 42.",
		},
		{
			name: "stray closer drops prefix",
			in:   "verlorene Gedanken</think>Die eigentliche Antwort.",
			want: "Die eigentliche Antwort.",
		},
		{
			name: "no tags untouched",
			in:   "  Ganz normale Antwort.  ",
			want: "Ganz normale Antwort.",
		},
		{
			// "Ⱥ" grows from two to three bytes under ToLower; the tag
			// offsets must still land on the tag.
			name: "unclosed opener after width-changing runes",
			in:   "ȺȺȺȺȺȺȺȺ<think>heimlich",
			want: "ȺȺȺȺȺȺȺȺ",
		},
		{
			name: "stray closer after width-changing runes",
			in:   "ȺȺȺȺȺȺȺȺ</think>Fertig.",
			want: "Fertig.",
		},
		{
			name: "empty after scrub",
			in:   "<think>nur Gedanken</think>",
			want: "",
		},
		{
			name:       "filler line dropped",
			in:         "Hier die Antwort.\n。。。！！\nUnd weiter.",
			dropFiller: true,
			want:       "Hier die Antwort.\n\nUnd weiter.",
		},
		{
			name:       "umlaut line survives filler scrub",
			in:         "Schöne Grüße!\n！？。",
			dropFiller: true,
			want:       "Schöne Grüße!",
		},
		{
			name:       "filler kept without flag",
			in:         "Antwort\n。。。",
			dropFiller: false,
			want:       "Antwort\n。。。",
		},
		{
			name:       "blank lines survive filler scrub",
			in:         "Absatz eins.\n\nAbsatz zwei.",
			dropFiller: true,
			want:       "Absatz eins.\n\nAbsatz zwei.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Scrub(tt.in, tt.dropFiller); got != tt.want {
				t.Errorf("Scrub(%q, %v) = %q, want %q", tt.in, tt.dropFiller, got, tt.want)
			}
		})
	}
}
