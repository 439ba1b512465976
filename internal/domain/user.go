// Package domain contains identifiers and payloads without logic, just meta-data
package domain

import (
	"errors"
	"strconv"
)

var ErrBadID = errors.New("invalid id")

// UserID is an opaque user identity. Authentication happens before it reaches us.
type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseUserID parses a positive decimal identity, as found in URL path params.
func ParseUserID(s string) (UserID, error) {
	n, err := parseID(s)
	return UserID(n), err
}

func parseID(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrBadID
	}
	return n, nil
}
