// internal/catalog/isbn_test.go
package catalog

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestValidISBN(t *testing.T) {
	testCases := []struct {
		isbn string
		want bool
	}{
		{"12345", false},
		{"0306406152", true},
		{"9780306406157", true},
		{"0-306-40615-2", true},
		{"978 0 306 40615 7", true},
		{"080442957X", true},
		{"080442957x", true},
		{"X804429570", false},
		{"97803064061X7", false},
		{"978030640615", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(tc.isbn, func(t *testing.T) {
			assert.Equal(t, tc.want, ValidISBN(tc.isbn))
		})
	}
}

func TestValidISBN_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		digits := rapid.StringMatching(`[0-9]{13}`).Draw(t, "digits")
		if !ValidISBN(digits) {
			t.Fatalf("13 digits rejected: %s", digits)
		}

		// Separators never change the verdict.
		sep := rapid.SampledFrom([]string{"-", " "}).Draw(t, "sep")
		withSep := digits[:3] + sep + digits[3:]
		if !ValidISBN(withSep) {
			t.Fatalf("separated isbn rejected: %q", withSep)
		}

		n := rapid.IntRange(0, 20).Draw(t, "length")
		if n != 10 && n != 13 && ValidISBN(strings.Repeat("1", n)) {
			t.Fatalf("isbn of length %d accepted", n)
		}
	})
}

func ExampleValidISBN() {
	fmt.Println(ValidISBN("0306406152"), ValidISBN("12345"))
	// Output: true false
}
