package behavior

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

const (
	FingerprintPrefix  = "fp_"
	unknownComponent   = "unknown"
	fingerprintJoinSep = "|"
)

// Environment is the set of device characteristics a page reports when it
// opens a visit. Pointer fields distinguish a reported zero from a missing
// value.
type Environment struct {
	UserAgent           string `json:"userAgent"`
	Language            string `json:"language"`
	ScreenWidth         *int   `json:"screenWidth,omitempty"`
	ScreenHeight        *int   `json:"screenHeight,omitempty"`
	ColorDepth          *int   `json:"colorDepth,omitempty"`
	TimezoneOffset      *int   `json:"timezoneOffset,omitempty"`
	HardwareConcurrency int    `json:"hardwareConcurrency,omitempty"`
}

// Components returns the ordered values hashed into a fingerprint.
func (e Environment) Components() []string {
	return []string{
		stringOrUnknown(e.UserAgent),
		stringOrUnknown(e.Language),
		intOrUnknown(e.ScreenWidth),
		intOrUnknown(e.ScreenHeight),
		intOrUnknown(e.ColorDepth),
		intOrUnknown(e.TimezoneOffset),
		positiveOrUnknown(e.HardwareConcurrency),
	}
}

// Fingerprint derives the stable pseudonymous identifier for an environment.
// It never fails: missing characteristics degrade to placeholders, so two
// sparse environments may collide. Equality is a continuity hint only.
func Fingerprint(env Environment) string {
	joined := strings.Join(env.Components(), fingerprintJoinSep)

	var hash int32
	for _, unit := range utf16.Encode([]rune(joined)) {
		hash = hash*31 + int32(unit)
	}

	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}
	return FingerprintPrefix + strconv.FormatInt(abs, 36)
}

// IsFingerprint reports whether s has the shape produced by Fingerprint.
func IsFingerprint(s string) bool {
	if !strings.HasPrefix(s, FingerprintPrefix) || len(s) == len(FingerprintPrefix) || len(s) > 64 {
		return false
	}
	for _, r := range s[len(FingerprintPrefix):] {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return true
}

func stringOrUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return unknownComponent
	}
	return v
}

func intOrUnknown(v *int) string {
	if v == nil {
		return unknownComponent
	}
	return strconv.Itoa(*v)
}

func positiveOrUnknown(v int) string {
	if v <= 0 {
		return unknownComponent
	}
	return strconv.Itoa(v)
}
