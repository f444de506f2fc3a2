package executor

import "testing"

func TestSanitizeSelectorIdempotent(t *testing.T) {
	cases := []string{
		"#submit",
		"div.card > a[href^=\"https\"]",
		"  ul li:nth-child(2)  ",
		"input[name='email']",
	}
	for _, c := range cases {
		once, err := SanitizeSelector(c)
		if err != nil {
			t.Fatalf("SanitizeSelector(%q): %v", c, err)
		}
		twice, err := SanitizeSelector(once)
		if err != nil {
			t.Fatalf("SanitizeSelector(%q) (second pass): %v", once, err)
		}
		if once != twice {
			t.Fatalf("sanitize(sanitize(s)) != sanitize(s): %q vs %q", once, twice)
		}
	}
}

func TestSanitizeSelectorRejectsInjection(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"</style><script>alert(1)</script>",
		"img[src=x onerror=alert(1)]</img>",
		"a{background:url(javascript:alert(1))}",
	}
	for _, b := range bad {
		if _, err := SanitizeSelector(b); err == nil {
			t.Fatalf("expected SanitizeSelector(%q) to fail", b)
		}
	}
}
