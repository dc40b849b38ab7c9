// Package security provides guessability analysis for chat-lock passcodes.
package security

// PinStrength represents the guessability of a 4-digit passcode.
type PinStrength int

const (
	// PinWeak indicates a passcode on the common-PIN list or with a trivial
	// digit pattern.
	PinWeak PinStrength = iota
	// PinFair indicates a passcode with a partially predictable pattern.
	PinFair
	// PinGood indicates a passcode with no recognized pattern.
	PinGood
)

// String returns a human-readable representation of the PIN strength.
func (s PinStrength) String() string {
	switch s {
	case PinWeak:
		return "Weak"
	case PinFair:
		return "Fair"
	case PinGood:
		return "Good"
	default:
		return "Unknown"
	}
}

// commonPins are the most frequently chosen 4-digit codes from published
// breach analyses. An attacker gets three guesses per day; these are the
// three they will try first.
var commonPins = map[string]bool{
	"1234": true, "1111": true, "0000": true, "1212": true,
	"7777": true, "1004": true, "2000": true, "4444": true,
	"2222": true, "6969": true, "9999": true, "3333": true,
	"5555": true, "6666": true, "1122": true, "1313": true,
	"8888": true, "4321": true, "2001": true, "1010": true,
}

// CheckPasscode analyzes a 4-digit passcode and returns its strength along
// with advisory warnings. The caller is expected to have validated the
// format already; anything that is not 4 digits is reported as weak.
func CheckPasscode(pin string) (PinStrength, []string) {
	if len(pin) != 4 {
		return PinWeak, []string{"Passcode must be exactly 4 digits"}
	}

	var warnings []string

	if commonPins[pin] {
		warnings = append(warnings, "This is one of the most commonly used passcodes")
		return PinWeak, warnings
	}

	if allSameDigit(pin) {
		warnings = append(warnings, "All digits are identical")
		return PinWeak, warnings
	}

	if isSequential(pin) {
		warnings = append(warnings, "Sequential digits are easy to guess")
		return PinWeak, warnings
	}

	// Repeated two-digit pattern, e.g. 2525
	if pin[0] == pin[2] && pin[1] == pin[3] {
		warnings = append(warnings, "Repeated digit pairs are easier to guess")
		return PinFair, warnings
	}

	// Plausible birth year
	if pin[0] == '1' && pin[1] == '9' || pin[0] == '2' && pin[1] == '0' {
		warnings = append(warnings, "Years make predictable passcodes")
		return PinFair, warnings
	}

	return PinGood, nil
}

func allSameDigit(pin string) bool {
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			return false
		}
	}
	return true
}

// isSequential reports ascending or descending runs like 1234 or 9876.
func isSequential(pin string) bool {
	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[i-1]+1 {
			ascending = false
		}
		if pin[i] != pin[i-1]-1 {
			descending = false
		}
	}
	return ascending || descending
}
