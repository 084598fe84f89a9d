// Package address maps the last three octets of an IPv4 address to a
// three-word, human-memorable token such as "Apple/Bacon/Cheese".
//
// Tokens may be partial ("Cheese", "Bacon.Cheese") and may mix words with
// numeric literals ("Apple/5/27"). Partial tokens are right-aligned; the
// missing leading octets are taken from the local host at send time. This
// only works when peers share the leading octets, i.e. sit on the same
// subnet, and that limitation is deliberate.
package address

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Unspecified marks an octet position that the token did not provide.
const Unspecified = -1

// Address holds octets two to four of an IPv4 address. Each position is
// either Unspecified or a value in [0,255].
type Address struct {
	O2, O3, O4 int
}

var invalid = Address{Unspecified, Unspecified, Unspecified}

var index = func() map[string]int {
	m := make(map[string]int, len(words))
	for i, w := range words {
		if i == 0 {
			continue
		}
		m[strings.ToLower(w)] = i
	}
	return m
}()

// Word returns the vocabulary word for an octet, coercing it into [1,255].
func Word(octet int) string { return words[clamp(octet)] }

// Encode maps three octets to a slash separated word address.
func Encode(o2, o3, o4 int) string {
	return Word(o2) + "/" + Word(o3) + "/" + Word(o4)
}

// DecodeWord looks a word up case-insensitively.
func DecodeWord(word string) (int, bool) {
	v, ok := index[strings.ToLower(strings.TrimSpace(word))]
	return v, ok
}

// Parse decodes a 1-3 segment token. Any segment that is neither a number
// in [0,255] nor a known word invalidates the whole token, in which case all
// positions are Unspecified.
func Parse(token string) Address {
	token = strings.TrimSpace(token)
	if token == "" {
		return invalid
	}
	segs := strings.FieldsFunc(token, func(r rune) bool { return r == '/' || r == '.' })
	// FieldsFunc collapses empty segments; "a//b" must still be rejected.
	if len(segs) == 0 || len(segs) > 3 || strings.Count(token, "/")+strings.Count(token, ".") != len(segs)-1 {
		return invalid
	}
	out := [3]int{Unspecified, Unspecified, Unspecified}
	off := 3 - len(segs)
	for i, s := range segs {
		v, ok := segment(s)
		if !ok {
			return invalid
		}
		out[off+i] = v
	}
	return Address{out[0], out[1], out[2]}
}

func segment(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 255 {
			return 0, false
		}
		return n, true
	}
	return DecodeWord(s)
}

// IsValid reports whether token resolves at least one octet above zero.
func IsValid(token string) bool { return Parse(token).Valid() }

// Valid reports whether at least one position holds an octet above zero.
func (a Address) Valid() bool { return a.O2 > 0 || a.O3 > 0 || a.O4 > 0 }

// Complete reports whether all three positions are specified.
func (a Address) Complete() bool {
	return a.O2 != Unspecified && a.O3 != Unspecified && a.O4 != Unspecified
}

// String renders the specified positions in word form.
func (a Address) String() string {
	parts := make([]string, 0, 3)
	for _, o := range []int{a.O2, a.O3, a.O4} {
		if o != Unspecified {
			parts = append(parts, Word(o))
		}
	}
	return strings.Join(parts, "/")
}

// Resolve fills unspecified positions from local and returns the IPv4
// address to dial. The first octet always comes from local. Octets that were
// given explicitly are coerced into [1,255]; inherited ones are copied as is.
func (a Address) Resolve(local net.IP) (net.IP, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("address: nothing to resolve")
	}
	l4 := local.To4()
	if l4 == nil {
		return nil, fmt.Errorf("address: local address %v is not IPv4", local)
	}
	ip := net.IPv4(l4[0], l4[1], l4[2], l4[3]).To4()
	for i, o := range []int{a.O2, a.O3, a.O4} {
		if o == Unspecified {
			continue
		}
		ip[i+1] = byte(clamp(o))
	}
	return ip, nil
}

// FromIP returns the word address of an IPv4 address.
func FromIP(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return Encode(int(v4[1]), int(v4[2]), int(v4[3]))
}

func clamp(o int) int {
	switch {
	case o < 1:
		return 1
	case o > 255:
		return 255
	}
	return o
}
