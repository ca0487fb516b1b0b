package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// NumberPrefixLength is the length of the prefix of native approval numbers.
	NumberPrefixLength = 5
	// NumberLength is the length of an approval number.
	NumberLength       = 12
	numberSuffixDigits = NumberLength - NumberPrefixLength
	maxNumberSuffix    = 9999999
)

// ErrNumberOverflow is returned when the numeric suffix of the sequence is exhausted.
var ErrNumberOverflow = errors.New("approval number sequence exhausted")

// NextNumber returns the number following last for prefix. An empty last
// starts the sequence at 1.
func NextNumber(prefix, last string) (string, error) {
	if len(prefix) != NumberPrefixLength {
		return "", fmt.Errorf("approval number prefix must be %d characters, got %q", NumberPrefixLength, prefix)
	}

	next := 1
	if last != "" {
		if !strings.HasPrefix(last, prefix) || len(last) != NumberLength {
			return "", fmt.Errorf("approval number %q does not belong to prefix %q", last, prefix)
		}
		current, err := strconv.Atoi(last[NumberPrefixLength:])
		if err != nil {
			return "", fmt.Errorf("parse approval number %q: %w", last, err)
		}
		next = current + 1
	}
	if next > maxNumberSuffix {
		return "", ErrNumberOverflow
	}

	return fmt.Sprintf("%s%0*d", prefix, numberSuffixDigits, next), nil
}

// IsNative reports whether number was issued by this platform's sequence.
func IsNative(number, prefix string) bool {
	return strings.HasPrefix(number, prefix)
}

// NumberWithSpaces groups a 12 or 15 character number for display:
// "XXXXX 00 00001" or "XXXXX 00 00001 P01".
func NumberWithSpaces(number string) string {
	switch len(number) {
	case NumberLength:
		return number[:5] + " " + number[5:7] + " " + number[7:]
	case PoleEmploiNumberLength:
		return number[:5] + " " + number[5:7] + " " + number[7:12] + " " + number[12:]
	default:
		return number
	}
}
