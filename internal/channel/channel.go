// Package channel implements the channel-name grammar and the subscription
// authorization rule attached to personal channels.
//
// Valid channel names:
//
//	chat            - the shared lobby channel
//	chat:<slug>     - a named room; slug characters are [A-Za-z0-9_-]
//	user:<userId>   - a personal channel owned by exactly one user
package channel

import (
	"errors"
	"regexp"
	"strings"
)

// Sentinel errors returned by validation. Callers should use errors.Is.
var (
	// ErrInvalidName is returned when a channel name matches none of the
	// allowed forms.
	ErrInvalidName = errors.New("channel: invalid channel name")

	// ErrNotOwner is returned when a user tries to subscribe to another
	// user's personal channel.
	ErrNotOwner = errors.New("channel: cannot subscribe to other user channels")
)

const (
	// userPrefix marks personal channels.
	userPrefix = "user:"
)

var (
	chatRoomPattern = regexp.MustCompile(`^chat:[\w-]+$`)
	userPattern     = regexp.MustCompile(`^user:[\w-]+$`)
)

// Validate reports whether name is one of the allowed channel forms.
func Validate(name string) error {
	switch {
	case name == "chat":
		return nil
	case chatRoomPattern.MatchString(name):
		return nil
	case userPattern.MatchString(name):
		return nil
	default:
		return ErrInvalidName
	}
}

// IsPersonal reports whether name is a user:<id> channel.
func IsPersonal(name string) bool {
	return strings.HasPrefix(name, userPrefix)
}

// Authorize validates name and, for personal channels, checks that userID
// owns it. Non-personal valid channels are open to every known user.
func Authorize(name, userID string) error {
	if err := Validate(name); err != nil {
		return err
	}
	if IsPersonal(name) && strings.TrimPrefix(name, userPrefix) != userID {
		return ErrNotOwner
	}
	return nil
}
