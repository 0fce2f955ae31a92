package strpool

import (
	"strings"
	"testing"
)

func TestShortStringRoundTrip(t *testing.T) {
	p := New(1024)
	h, err := p.NewHandle("hello")
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Read(h)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestLongStringRoundTrip(t *testing.T) {
	p := New(4096)
	s := strings.Repeat("ab", 100) // 200 bytes, well past MaxShortLen
	h, err := p.NewHandle(s)
	if err != nil {
		t.Fatal(err)
	}
	if isShort(h) {
		t.Fatal("expected long handle")
	}
	got, err := p.Read(h)
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Fatalf("round trip mismatch: got len %d want len %d", len(got), len(s))
	}
}

func TestEmptyString(t *testing.T) {
	p := New(1024)
	h, err := p.NewHandle("")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := p.Read(h)
	if got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestExactlyMaxShortLenStaysInline(t *testing.T) {
	p := New(1024)
	s := strings.Repeat("x", MaxShortLen)
	h, err := p.NewHandle(s)
	if err != nil {
		t.Fatal(err)
	}
	if !isShort(h) {
		t.Fatal("expected short handle at the boundary length")
	}
}

func TestOneByteOverMaxShortLenIsLong(t *testing.T) {
	p := New(4096)
	s := strings.Repeat("x", MaxShortLen+1)
	h, err := p.NewHandle(s)
	if err != nil {
		t.Fatal(err)
	}
	if isShort(h) {
		t.Fatal("expected long handle one byte over the inline boundary")
	}
}

func TestCompareShortStrings(t *testing.T) {
	p := New(1024)
	a, _ := p.NewHandle("apple")
	b, _ := p.NewHandle("banana")
	c, err := p.Compare(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if c >= 0 {
		t.Fatalf("expected apple < banana, got %d", c)
	}
}

func TestCompareLongStringsBySuffix(t *testing.T) {
	p := New(8192)
	base := strings.Repeat("a", prefixLen)
	s1 := base + "suffix-one"
	s2 := base + "suffix-two"
	h1, _ := p.NewHandle(s1)
	h2, _ := p.NewHandle(s2)
	c, err := p.Compare(h1, h2)
	if err != nil {
		t.Fatal(err)
	}
	if c >= 0 {
		t.Fatalf("expected s1 < s2 via suffix comparison, got %d", c)
	}
}

func TestFreeAndReallocate(t *testing.T) {
	p := New(256)
	s := strings.Repeat("z", 100)
	h, err := p.NewHandle(s)
	if err != nil {
		t.Fatal(err)
	}
	freeBefore := p.FreeSpace()
	if err := p.Free(h); err != nil {
		t.Fatal(err)
	}
	if p.FreeSpace() <= freeBefore {
		t.Fatal("expected free space to increase after Free")
	}

	h2, err := p.NewHandle(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Read(h2)
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Fatal("reallocated string mismatch")
	}
}

func TestPoolExhaustion(t *testing.T) {
	p := New(10) // tiny pool
	_, err := p.NewHandle(strings.Repeat("q", 100))
	if err == nil {
		t.Fatal("expected allocation failure on exhausted pool")
	}
}
