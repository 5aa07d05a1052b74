package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedPattern is returned when an encoded pattern cannot be decoded
var ErrMalformedPattern = errors.New("malformed pattern envelope")

// patternFlags are the flags accepted by the v1 envelope. Each maps directly
// onto the Go regexp group option of the same letter.
var patternFlags = map[rune]bool{
	'i': true,
	'm': true,
	's': true,
}

// Pattern is a compiled classification pattern. On the wire it travels as a
// "/source/flags" string (v1 envelope): the text between the first and last
// slash is the expression source, the trailing characters are flags drawn
// from {i, m, s}.
type Pattern struct {
	re     *regexp.Regexp
	source string
	flags  string
}

// ParsePattern decodes a v1 "/source/flags" envelope into a live Pattern.
func ParsePattern(encoded string) (Pattern, error) {
	if len(encoded) < 2 || !strings.HasPrefix(encoded, "/") {
		return Pattern{}, fmt.Errorf("%w: %q is not slash-delimited", ErrMalformedPattern, encoded)
	}

	end := strings.LastIndex(encoded, "/")
	if end == 0 {
		return Pattern{}, fmt.Errorf("%w: %q has no closing slash", ErrMalformedPattern, encoded)
	}

	source := encoded[1:end]
	flags := encoded[end+1:]
	if source == "" {
		return Pattern{}, fmt.Errorf("%w: %q has an empty expression", ErrMalformedPattern, encoded)
	}

	for _, f := range flags {
		if !patternFlags[f] {
			return Pattern{}, fmt.Errorf("%w: unsupported flag %q in %q", ErrMalformedPattern, string(f), encoded)
		}
	}

	expr := source
	if flags != "" {
		expr = "(?" + flags + ")" + source
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: %q does not compile: %v", ErrMalformedPattern, encoded, err)
	}

	return Pattern{re: re, source: source, flags: flags}, nil
}

// MustParsePattern is a test helper that panics on a malformed envelope.
func MustParsePattern(encoded string) Pattern {
	p, err := ParsePattern(encoded)
	if err != nil {
		panic(err)
	}
	return p
}

// MatchString reports whether the pattern matches the raw string.
func (p Pattern) MatchString(s string) bool {
	if p.re == nil {
		return false
	}
	return p.re.MatchString(s)
}

// Encode returns the v1 "/source/flags" envelope for the pattern.
func (p Pattern) Encode() string {
	return "/" + p.source + "/" + p.flags
}

// String implements fmt.Stringer.
func (p Pattern) String() string {
	return p.Encode()
}

// MarshalJSON encodes the pattern as its envelope string, so rules survive
// round-trips through byte-oriented cache backends.
func (p Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Encode())
}

// UnmarshalJSON decodes an envelope string back into a live pattern.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return fmt.Errorf("%w: pattern must be a JSON string", ErrMalformedPattern)
	}

	parsed, err := ParsePattern(encoded)
	if err != nil {
		return err
	}

	*p = parsed
	return nil
}
