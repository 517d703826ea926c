// internal/catalog/isbn.go
package catalog

import "strings"

// ValidISBN reports whether isbn has the shape of an ISBN-10 or ISBN-13 once
// hyphens and spaces are removed. Check digits are not verified.
func ValidISBN(isbn string) bool {
	isbn = strings.NewReplacer("-", "", " ", "").Replace(isbn)

	switch len(isbn) {
	case 10:
		if !allDigits(isbn[:9]) {
			return false
		}
		last := isbn[9]
		return isDigit(last) || last == 'X' || last == 'x'
	case 13:
		return allDigits(isbn)
	default:
		return false
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
