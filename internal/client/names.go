package client

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// BusNameBase prefixes every client's well-known name.
	BusNameBase = "org.freedesktop.Telepathy.Client."

	IfaceClient   = "org.freedesktop.Telepathy.Client"
	IfaceHandler  = IfaceClient + ".Handler"
	IfaceApprover = IfaceClient + ".Approver"
	IfaceObserver = IfaceClient + ".Observer"

	// ProxyType keys client descriptors in readiness.Descriptors.
	ProxyType = "client"
)

var ErrInvalidName = errors.New("client: invalid client name")

// HasClientPrefix reports whether name is in the client namespace.
func HasClientPrefix(name string) bool {
	return strings.HasPrefix(name, BusNameBase)
}

// CheckValidName validates the part of a client bus name after BusNameBase:
// dot-separated elements, each starting with a letter or underscore and
// containing only ASCII letters, digits, '_' or '-'.
func CheckValidName(suffix string) error {
	if suffix == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	for i, element := range strings.Split(suffix, ".") {
		if element == "" {
			return fmt.Errorf("%w: %q has an empty element at %d", ErrInvalidName, suffix, i)
		}
		if c := element[0]; !isLetter(c) && c != '_' {
			return fmt.Errorf("%w: element %q must start with a letter or '_'", ErrInvalidName, element)
		}
		for j := 0; j < len(element); j++ {
			c := element[j]
			if !(isLetter(c) || isDigit(c) || c == '_' || c == '-') {
				return fmt.Errorf("%w: element %q contains %q", ErrInvalidName, element, c)
			}
		}
	}
	return nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
