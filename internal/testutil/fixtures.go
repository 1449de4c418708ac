package testutil

import "github.com/MeKo-Tech/kycscan/internal/recognizer"

// Known-good identifiers used across tests.
const (
	ValidAadhaar   = "234567890124"
	InvalidAadhaar = "234567890123"
	ValidPAN       = "ABCPK1234F"
	PassportNumber = "J8369854"
	MRZLine1       = "P<INDKUMAR<<RAVI<<<<<<<<<<<<<<<<<<<<<<<<<<<<"
	MRZLine2       = "J8369854<4IND9005123M3201015<<<<<<<<<<<<<<04"
)

// AadhaarTokens is a clean Aadhaar letter front as an engine would read it.
// The ID number is split into three groups the way it is printed.
func AadhaarTokens() []recognizer.EngineToken {
	return []recognizer.EngineToken{
		Token("GOVERNMENT OF INDIA", 320, 25, 360, 30, 0.97),
		Token("RAVI KUMAR", 300, 150, 220, 30, 0.96),
		Token("DOB: 12/05/1990", 300, 230, 260, 30, 0.95),
		Token("MALE", 300, 290, 90, 30, 0.96),
		Token("Address: 12 MG Road, Bengaluru 560038", 300, 380, 560, 28, 0.94),
		Token("2345", 300, 480, 80, 36, 0.97),
		Token("6789", 400, 480, 80, 36, 0.97),
		Token("0124", 500, 480, 80, 36, 0.97),
		Token("Aam Aadmi ka Adhikar", 330, 595, 340, 25, 0.9),
	}
}

// PANTokens is a clean PAN card.
func PANTokens() []recognizer.EngineToken {
	return []recognizer.EngineToken{
		Token("INCOME TAX DEPARTMENT", 40, 30, 420, 30, 0.97),
		Token("RAVI KUMAR", 40, 170, 220, 30, 0.96),
		Token("SURESH KUMAR", 40, 260, 260, 30, 0.95),
		Token("12/05/1990", 40, 340, 200, 30, 0.96),
		Token("Permanent Account Number", 40, 400, 420, 26, 0.93),
		Token(ValidPAN, 40, 440, 240, 34, 0.97),
	}
}

// PassportTokens is a passport data page; only the MRZ matters for extraction.
func PassportTokens() []recognizer.EngineToken {
	return []recognizer.EngineToken{
		Token("REPUBLIC OF INDIA", 300, 20, 400, 30, 0.95),
		Token("KUMAR", 420, 120, 120, 28, 0.9),
		Token("RAVI", 420, 180, 100, 28, 0.9),
		Token(MRZLine1, 30, 520, 940, 34, 0.96),
		Token(MRZLine2, 30, 570, 940, 34, 0.96),
	}
}

// UtilityBillTokens is an electricity bill header block.
func UtilityBillTokens() []recognizer.EngineToken {
	return []recognizer.EngineToken{
		Token("STATE ELECTRICITY BOARD", 300, 20, 420, 30, 0.95),
		Token("Consumer Name: RAVI KUMAR", 40, 120, 420, 28, 0.95),
		Token("Address: 12 MG Road, Indiranagar,", 40, 200, 520, 28, 0.93),
		Token("Bengaluru, Karnataka 560038", 40, 240, 480, 28, 0.93),
		Token("Consumer No: 1234567890", 600, 120, 340, 28, 0.95),
		Token("Amount Due: 1,250.00", 600, 400, 320, 28, 0.95),
	}
}
