package slug

import "testing"

func TestMake(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Kopi Susu", "kopi-susu"},
		{"punctuation", "Teh Botol (Kotak) 250ml", "teh-botol-kotak-250ml"},
		{"collapsed separators", "A  --  B", "a-b"},
		{"leading trailing symbols", "  #Promo!  ", "promo"},
		{"already slug", "minuman-dingin", "minuman-dingin"},
		{"unicode stripped", "Café Déjà", "caf-d-j"},
		{"empty", "", ""},
		{"all symbols", "!!!", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Make(tc.in); got != tc.want {
				t.Fatalf("Make(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
