package flow

import (
	"strings"
	"testing"
)

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"alice@example.com":  true,
		"a.b+c@mail.co.uk":   true,
		"alice@example":      false,
		"alice example.com":  false,
		"@example.com":       false,
		"alice@@example.com": false,
		"":                   false,
	}
	for input, want := range cases {
		if got := ValidEmail(input); got != want {
			t.Errorf("ValidEmail(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestValidOTP(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"123456", true},
		{"000000", true},
		{"12345", false},
		{"1234567", false},
		{"12a456", false},
		{"\uff11\uff12\uff13\uff14\uff15\uff16", false},
	}
	for _, tc := range cases {
		if got := ValidOTP(tc.input); got != tc.want {
			t.Errorf("ValidOTP(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeNetwork(t *testing.T) {
	for _, input := range []string{"polygon", "POLYGON", " Polygon "} {
		got, ok := NormalizeNetwork(input, DefaultNetworks)
		if !ok || got != "POLYGON" {
			t.Fatalf("NormalizeNetwork(%q) = %q %v", input, got, ok)
		}
	}
	if _, ok := NormalizeNetwork("solana", DefaultNetworks); ok {
		t.Fatalf("networks outside the allow-list must be rejected")
	}
}

func TestNormalizeTokenAddress(t *testing.T) {
	if got := NormalizeTokenAddress("  "); got != "" {
		t.Fatalf("blank input should mean native token, got %q", got)
	}
	if got := NormalizeTokenAddress("native"); got != "" {
		t.Fatalf("NATIVE keyword should mean native token, got %q", got)
	}
	if got := NormalizeTokenAddress(" 0xToken "); got != "0xToken" {
		t.Fatalf("unexpected token address %q", got)
	}
}

func TestValidQuantity(t *testing.T) {
	for _, input := range []string{"0", "-5", "abc", "", "Inf", "NaN", "1e400", "0x1p2", "0x1.8p1", "1_000", " 1", "1.2.3"} {
		if ValidQuantity(input) {
			t.Errorf("quantity %q should be rejected", input)
		}
	}
	for _, input := range []string{"1.5", "0.0001", "10", ".5", "2.", "+3", "1e-3"} {
		if !ValidQuantity(input) {
			t.Errorf("quantity %q should be accepted", input)
		}
	}
}

func TestValidRecipient(t *testing.T) {
	hex40 := strings.Repeat("a", 40)
	cases := []struct {
		input string
		want  bool
	}{
		{"0x" + hex40, true},
		{"0x52908400098527886E0F7030069857D2E4169EE7", true},
		{"0x" + hex40[:39], false},
		{"0x" + hex40 + "a", false},
		{hex40, false},
		{"0X" + hex40, false},
		{"0x" + strings.Repeat("g", 40), false},
	}
	for _, tc := range cases {
		if got := ValidRecipient(tc.input); got != tc.want {
			t.Errorf("ValidRecipient(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
