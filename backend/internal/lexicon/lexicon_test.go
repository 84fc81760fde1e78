package lexicon

import (
	"reflect"
	"testing"
)

func TestPlural(t *testing.T) {
	lex := New()

	cases := map[string]string{
		"otter":  "otters",
		"otters": "otters",
		"fish":   "fish",
		"wolf":   "wolves",
		"wolves": "wolves",
		"mouse":  "mice",
		"Otter":  "otters",
		" bear ": "bears",
	}
	for in, want := range cases {
		if got := lex.Plural(in); got != want {
			t.Errorf("Plural(%q) = %q, want %q", in, got, want)
		}
	}

	if got := lex.Plural(""); got != "" {
		t.Errorf("Plural(\"\") = %q, want empty", got)
	}
}

func TestSingular(t *testing.T) {
	lex := New()

	cases := map[string]string{
		"otters": "otter",
		"otter":  "otter",
		"wolves": "wolf",
		"mice":   "mouse",
	}
	for in, want := range cases {
		if got := lex.Singular(in); got != want {
			t.Errorf("Singular(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSynonymousNames(t *testing.T) {
	lex := New()

	cases := []struct {
		in   string
		want []string
	}{
		{"otter", []string{"otter", "otters"}},
		{"otters", []string{"otter", "otters"}},
		{"fish", []string{"fish"}},
		{"wolves", []string{"wolf", "wolves"}},
		{"", nil},
	}
	for _, c := range cases {
		got := lex.SynonymousNames(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("SynonymousNames(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestRelationshipSynonyms(t *testing.T) {
	lex := New()

	cases := []struct {
		in   string
		want []string
	}{
		{"has", []string{"has", "have"}},
		{"have", []string{"have", "has"}},
		{"eats", []string{"eats", "eat"}},
		{"Live", []string{"live", "lives"}},
		{"chases", []string{"chases"}},
		{"", nil},
	}
	for _, c := range cases {
		got := lex.RelationshipSynonyms(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("RelationshipSynonyms(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestSynonymousNamesIsSymmetric(t *testing.T) {
	lex := New()

	singular := lex.SynonymousNames("river")
	plural := lex.SynonymousNames("rivers")
	if !reflect.DeepEqual(singular, plural) {
		t.Errorf("synonym sets differ: %v vs %v", singular, plural)
	}
}
