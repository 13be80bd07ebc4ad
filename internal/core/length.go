package core

import (
	"fmt"
	"strings"
)

// Length is the requested narration length category.
type Length string

// Supported length categories.
const (
	LengthShort  Length = "Short"
	LengthMedium Length = "Medium"
	LengthLong   Length = "Long"
)

// DefaultLength is used when a request does not name a length.
const DefaultLength = LengthMedium

// Lengths lists the supported categories in ascending order.
func Lengths() []Length {
	return []Length{LengthShort, LengthMedium, LengthLong}
}

// ParseLength accepts exactly one of the supported category names.
// An empty string selects DefaultLength.
func ParseLength(value string) (Length, error) {
	if strings.TrimSpace(value) == "" {
		return DefaultLength, nil
	}

	for _, length := range Lengths() {
		if string(length) == value {
			return length, nil
		}
	}

	return "", fmt.Errorf("%w: length must be Short, Medium, or Long", ErrValidation)
}

// Valid reports whether l is a supported category.
func (l Length) Valid() bool {
	switch l {
	case LengthShort, LengthMedium, LengthLong:
		return true
	default:
		return false
	}
}
