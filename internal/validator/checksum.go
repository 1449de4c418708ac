package validator

import (
	"strings"

	"github.com/MeKo-Tech/kycscan/internal/extractor"
)

var verhoeffD = [10][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
	{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
	{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
	{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
	{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
	{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
	{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
	{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
	{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
}

var verhoeffP = [8][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
	{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
	{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
	{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
	{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
	{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
	{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
}

// VerhoeffValid reports whether a digit string ends in a correct Verhoeff
// check digit, as Aadhaar numbers do.
func VerhoeffValid(digits string) bool {
	if len(digits) < 2 {
		return false
	}
	c := 0
	for i := 0; i < len(digits); i++ {
		d := digits[len(digits)-1-i]
		if d < '0' || d > '9' {
			return false
		}
		c = verhoeffD[c][verhoeffP[i%8][d-'0']]
	}
	return c == 0
}

// PAN holder types encoded in the fourth character.
const panHolderTypes = "ABCFGHJLPTE"

// PANValid checks the structure of a Permanent Account Number: five letters,
// four digits, a letter, with a known holder type in fourth place.
func PANValid(pan string) bool {
	if len(pan) != 10 {
		return false
	}
	for i := 0; i < 10; i++ {
		c := pan[i]
		letter := c >= 'A' && c <= 'Z'
		digit := c >= '0' && c <= '9'
		switch {
		case i < 5 || i == 9:
			if !letter {
				return false
			}
		default:
			if !digit {
				return false
			}
		}
	}
	return strings.IndexByte(panHolderTypes, pan[3]) >= 0
}

// MRZValid checks a raw MRZ slice whose last character is its check digit.
func MRZValid(raw string) bool {
	return extractor.CheckDigitValid(raw)
}
