package obfuscate

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestTransformSelfInverse(t *testing.T) {
	for _, n := range []int{1, 31, 32, 33, 1000, 64 * 1024} {
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			t.Fatalf("rand: %v", err)
		}
		enc := Transform(buf, "hunter2")
		if n >= 8 && bytes.Equal(enc, buf) {
			t.Fatalf("n=%d: transform was a no-op", n)
		}
		if dec := Transform(enc, "hunter2"); !bytes.Equal(dec, buf) {
			t.Fatalf("n=%d: roundtrip mismatch", n)
		}
	}
}

func TestTransformPassThrough(t *testing.T) {
	buf := []byte("plain")
	if got := Transform(buf, ""); !bytes.Equal(got, buf) {
		t.Fatalf("empty passphrase changed data")
	}
	if got := Transform(nil, "x"); len(got) != 0 {
		t.Fatalf("empty data changed")
	}
}

func TestKeystreamChaining(t *testing.T) {
	ks := keystream("p", 100)
	if len(ks) < 100 {
		t.Fatalf("keystream too short: %d", len(ks))
	}
	// blocks past the first must differ from it
	if bytes.Equal(ks[:32], ks[32:64]) {
		t.Fatalf("second block repeats the first")
	}
}

func TestTextRoundtrip(t *testing.T) {
	in := "héllo, wörld"
	enc := TransformText(in, "pass")
	if enc == in {
		t.Fatalf("text not transformed")
	}
	if out := RevertText(enc, "pass"); out != in {
		t.Fatalf("revert = %q", out)
	}
	if out := RevertText(enc, "other"); out == in {
		t.Fatalf("wrong passphrase recovered the text")
	}
}

func TestRevertTextMalformed(t *testing.T) {
	in := "not base64 !!"
	if out := RevertText(in, "pass"); out != in {
		t.Fatalf("malformed input changed: %q", out)
	}
}

func TestCodesMatch(t *testing.T) {
	if !CodesMatch("abc", "abc") {
		t.Fatalf("equal codes should match")
	}
	for _, c := range [][2]string{{"abc", "ABC"}, {"", ""}, {"abc", ""}, {"", "abc"}} {
		if CodesMatch(c[0], c[1]) {
			t.Fatalf("CodesMatch(%q,%q) = true", c[0], c[1])
		}
	}
}

func TestSettings(t *testing.T) {
	if err := (Settings{Enabled: true}).Validate(); err != ErrEmptyPassphrase {
		t.Fatalf("want ErrEmptyPassphrase, got %v", err)
	}
	if (Settings{Enabled: false, Passphrase: "x"}).Active() {
		t.Fatalf("disabled settings must not be active")
	}
	if !(Settings{Enabled: true, Passphrase: "x"}).Active() {
		t.Fatalf("expected active")
	}
}
