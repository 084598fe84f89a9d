package address

import (
	"net"
	"strings"
	"testing"
)

func TestWordTable(t *testing.T) {
	seen := make(map[string]int)
	for i := 1; i < len(words); i++ {
		w := strings.ToLower(words[i])
		if w == "" {
			t.Fatalf("empty word at %d", i)
		}
		if j, ok := seen[w]; ok {
			t.Fatalf("duplicate word %q at %d and %d", w, j, i)
		}
		seen[w] = i
	}
	if words[1] != "Apple" || words[255] != "Zucchini" {
		t.Fatalf("table bounds: %q .. %q", words[1], words[255])
	}
}

func TestEncodeParseRoundtripAllOctets(t *testing.T) {
	for o := 1; o <= 255; o++ {
		o2, o3, o4 := o, 256-o, (o*7)%255+1
		got := Parse(Encode(o2, o3, o4))
		if got != (Address{o2, o3, o4}) {
			t.Fatalf("roundtrip (%d,%d,%d) -> %+v", o2, o3, o4, got)
		}
	}
}

func TestAppleBaconCheese(t *testing.T) {
	a := Parse("Apple/Bacon/Cheese")
	if a != (Address{1, 5, 27}) {
		t.Fatalf("parse = %+v", a)
	}
	if s := Encode(1, 5, 27); s != "Apple/Bacon/Cheese" {
		t.Fatalf("encode = %q", s)
	}
}

func TestEncodeCoercesZero(t *testing.T) {
	if s := Encode(0, 0, 300); s != "Apple/Apple/Zucchini" {
		t.Fatalf("encode = %q", s)
	}
}

func TestDecodeWordCaseInsensitive(t *testing.T) {
	for _, w := range []string{"cheese", "CHEESE", " Cheese "} {
		if v, ok := DecodeWord(w); !ok || v != 27 {
			t.Fatalf("DecodeWord(%q) = %d, %v", w, v, ok)
		}
	}
	if _, ok := DecodeWord("Gravel"); ok {
		t.Fatalf("unexpected hit")
	}
}

func TestParsePartial(t *testing.T) {
	cases := map[string]Address{
		"Cheese":        {Unspecified, Unspecified, 27},
		"bacon.cheese":  {Unspecified, 5, 27},
		"12":            {Unspecified, Unspecified, 12},
		"Apple/5.27":    {1, 5, 27},
		"0/0/Zucchini":  {0, 0, 255},
		" Date / Fig ":  {Unspecified, 60, 73},
	}
	for in, want := range cases {
		if got := Parse(in); got != want {
			t.Fatalf("Parse(%q) = %+v, want %+v", in, got, want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "Gravel", "Apple/Gravel", "256", "-1", "1/2/3/4", "Apple//Cheese", "/Cheese", "Cheese."} {
		if got := Parse(in); got != invalid {
			t.Fatalf("Parse(%q) = %+v, want invalid", in, got)
		}
		if IsValid(in) {
			t.Fatalf("IsValid(%q) = true", in)
		}
	}
	if IsValid("0") {
		t.Fatalf("all-zero address must not be valid")
	}
	if !IsValid("0/0/1") {
		t.Fatalf("expected valid")
	}
}

func TestResolve(t *testing.T) {
	local := net.IPv4(192, 168, 4, 20)

	ip, err := Parse("Cheese").Resolve(local)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ip.Equal(net.IPv4(192, 168, 4, 27)) {
		t.Fatalf("ip = %v", ip)
	}

	ip, err = Parse("0/9").Resolve(local)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ip.Equal(net.IPv4(192, 168, 1, 9)) {
		t.Fatalf("explicit zero must be coerced, ip = %v", ip)
	}

	ip, err = Parse("1").Resolve(net.IPv4(10, 0, 0, 5))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ip.Equal(net.IPv4(10, 0, 0, 1)) {
		t.Fatalf("inherited octets must be kept, ip = %v", ip)
	}

	if _, err := Parse("nope").Resolve(local); err == nil {
		t.Fatalf("expected error for invalid address")
	}
	if _, err := Parse("Cheese").Resolve(net.ParseIP("::1")); err == nil {
		t.Fatalf("expected error for IPv6 local")
	}
}

func TestFromIPAndLocal(t *testing.T) {
	if s := FromIP(net.IPv4(10, 1, 5, 27)); s != "Apple/Bacon/Cheese" {
		t.Fatalf("FromIP = %q", s)
	}
	s, err := Local(Static(net.IPv4(10, 7, 24, 60)))
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	if s != "Banana/Carrot/Date" {
		t.Fatalf("Local = %q", s)
	}
}
