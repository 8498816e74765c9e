package domain

import "regexp"

var (
	// Device ids are client generated and unsigned; only the shape is checked.
	deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	itemIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)
)

func ValidateDeviceID(id string) error {
	if id == "" {
		return ErrIdentityMissing
	}
	if !deviceIDPattern.MatchString(id) {
		return ErrInvalidIdentity
	}
	return nil
}

func ValidateItemID(id string) error {
	if !itemIDPattern.MatchString(id) {
		return ErrInvalidItem
	}
	return nil
}
