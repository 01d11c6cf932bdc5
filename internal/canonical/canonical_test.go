package canonical

import "testing"

func TestCanonicalizeIdempotent(t *testing.T) {
	cases := []string{
		"https://produto.mercadolivre.com.br/MLB-1234567890-some-product",
		"https://www.mercadolivre.com.br/some-product/p/MLB1234567890",
		"https://m.mercadolivre.com.br/MLB_1234567890",
	}
	for _, in := range cases {
		first := Canonicalize(in)
		if first == "" {
			t.Fatalf("expected canonical url for %q", in)
		}
		second := Canonicalize(first)
		if first != second {
			t.Fatalf("not idempotent: %q -> %q -> %q", in, first, second)
		}
	}
}

func TestCanonicalizeRejectsNonMarketplace(t *testing.T) {
	cases := []string{
		"https://www.amazon.com/dp/B0123456",
		"https://example.com/MLB1234567890",
		"not a url at all",
	}
	for _, in := range cases {
		if got := Canonicalize(in); got != "" {
			t.Fatalf("expected empty canonical url for %q, got %q", in, got)
		}
	}
}

func TestIsProductURL(t *testing.T) {
	if !IsProductURL("https://www.mercadolivre.com.br/foo") {
		t.Fatal("expected true for known host")
	}
	if IsProductURL("https://www.amazon.com/foo") {
		t.Fatal("expected false for unknown host")
	}
}
