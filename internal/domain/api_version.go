package domain

import (
	"strconv"
	"strings"
)

// APIVersion is a dated platform API release, e.g. "2022-01"
type APIVersion string

const (
	July21      APIVersion = "2021-07"
	October21   APIVersion = "2021-10"
	January22   APIVersion = "2022-01"
	April22     APIVersion = "2022-04"
	Unstable    APIVersion = "unstable"
	Unversioned APIVersion = "unversioned"
)

// LatestAPIVersion is used when no version is configured
const LatestAPIVersion = April22

// IsKnownAPIVersion reports whether v is one of the released versions
func IsKnownAPIVersion(v APIVersion) bool {
	switch v {
	case July21, October21, January22, April22, Unstable, Unversioned:
		return true
	}
	return false
}

// VersionCompatible reports whether current is at least reference.
// Unstable and Unversioned are always compatible.
func VersionCompatible(reference, current APIVersion) bool {
	if current == Unstable || current == Unversioned {
		return true
	}

	cur, err := numericVersion(current)
	if err != nil {
		return false
	}
	ref, err := numericVersion(reference)
	if err != nil {
		return false
	}
	return cur >= ref
}

func numericVersion(v APIVersion) (int, error) {
	return strconv.Atoi(strings.ReplaceAll(string(v), "-", ""))
}
