// Package encoding converts forecast text between unicode strings and the
// byte encodings the store persists. All conversions are lossless; anything
// that would drop or fabricate data surfaces as a typed error instead.
package encoding

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// Encoding identifies a supported text encoding for stored forecasts.
type Encoding string

const (
	// UTF8 is the universal default, efficient for ASCII/Latin/Cyrillic text.
	UTF8 Encoding = "utf-8"
	// UTF16 is denser for CJK-heavy text; stored little-endian with a BOM.
	UTF16 Encoding = "utf-16"
	// UTF32 is fixed-width unicode; stored little-endian with a BOM.
	UTF32 Encoding = "utf-32"
)

// Supported returns the encodings the codec accepts, in preference order.
func Supported() []Encoding {
	return []Encoding{UTF8, UTF16, UTF32}
}

// EncodingError indicates text could not be encoded: either the encoding name
// is not supported or the input is not valid unicode.
type EncodingError struct {
	Encoding Encoding
	Reason   string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s: %s", e.Encoding, e.Reason)
}

// DecodingError indicates stored bytes are not valid for their declared
// encoding. This is a data-corruption signal, not a cache miss.
type DecodingError struct {
	Encoding Encoding
	Reason   string
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Encoding, e.Reason)
}

// Parse validates an encoding name. The empty string is rejected; callers
// wanting auto-detection should call DetectDefault before Parse.
func Parse(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case UTF8:
		return UTF8, nil
	case UTF16:
		return UTF16, nil
	case UTF32:
		return UTF32, nil
	}
	return "", &EncodingError{Encoding: Encoding(s), Reason: fmt.Sprintf("unsupported encoding, supported: %v", Supported())}
}

// Encode converts text to bytes in the given encoding. Returns the encoded
// bytes, their length, and the encoding actually used.
func Encode(text string, enc Encoding) ([]byte, int, Encoding, error) {
	if !utf8.ValidString(text) {
		return nil, 0, enc, &EncodingError{Encoding: enc, Reason: "text contains invalid unicode"}
	}
	switch enc {
	case UTF8:
		b := []byte(text)
		return b, len(b), UTF8, nil
	case UTF16:
		b, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, 0, enc, &EncodingError{Encoding: enc, Reason: err.Error()}
		}
		return b, len(b), UTF16, nil
	case UTF32:
		b, err := utf32.UTF32(utf32.LittleEndian, utf32.UseBOM).NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, 0, enc, &EncodingError{Encoding: enc, Reason: err.Error()}
		}
		return b, len(b), UTF32, nil
	}
	return nil, 0, enc, &EncodingError{Encoding: enc, Reason: fmt.Sprintf("unsupported encoding, supported: %v", Supported())}
}

// Decode converts stored bytes back to text. Strict: any invalid byte
// sequence for the declared encoding returns a DecodingError rather than a
// best-effort substitution. Use DecodeLenient when substitution is acceptable.
func Decode(data []byte, enc Encoding) (string, error) {
	if reason := validate(data, enc); reason != "" {
		return "", &DecodingError{Encoding: enc, Reason: reason}
	}
	return decode(data, enc)
}

// DecodeLenient decodes with U+FFFD substituted for invalid sequences.
// substituted reports whether any replacement happened, so callers can still
// distinguish a clean decode from a repaired one.
func DecodeLenient(data []byte, enc Encoding) (text string, substituted bool, err error) {
	substituted = validate(data, enc) != ""
	if enc == UTF8 {
		if !substituted {
			return string(data), false, nil
		}
		return strings.ToValidUTF8(string(data), string(utf8.RuneError)), true, nil
	}
	text, err = decode(data, enc)
	if err != nil {
		return "", substituted, err
	}
	return text, substituted, nil
}

// decode runs the x/text transform for non-trivial encodings. The decoders
// substitute U+FFFD for invalid input, so strict callers validate first.
func decode(data []byte, enc Encoding) (string, error) {
	switch enc {
	case UTF8:
		if !utf8.Valid(data) {
			return "", &DecodingError{Encoding: enc, Reason: "invalid utf-8 byte sequence"}
		}
		return string(data), nil
	case UTF16:
		b, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
		if err != nil {
			return "", &DecodingError{Encoding: enc, Reason: err.Error()}
		}
		return string(b), nil
	case UTF32:
		b, err := utf32.UTF32(utf32.LittleEndian, utf32.UseBOM).NewDecoder().Bytes(data)
		if err != nil {
			return "", &DecodingError{Encoding: enc, Reason: err.Error()}
		}
		return string(b), nil
	}
	return "", &DecodingError{Encoding: enc, Reason: fmt.Sprintf("unsupported encoding, supported: %v", Supported())}
}

// validate returns a non-empty reason when data is not a valid byte sequence
// for enc. The x/text decoders repair invalid input silently, so strict
// decoding needs this up-front check.
func validate(data []byte, enc Encoding) string {
	switch enc {
	case UTF8:
		if !utf8.Valid(data) {
			return "invalid utf-8 byte sequence"
		}
	case UTF16:
		return validateUTF16(data)
	case UTF32:
		return validateUTF32(data)
	default:
		return "unsupported encoding"
	}
	return ""
}

func validateUTF16(data []byte) string {
	if len(data)%2 != 0 {
		return "odd byte length for utf-16"
	}
	// BOM selects endianness; bare sequences are treated as little-endian,
	// matching what Encode writes.
	bigEndian := false
	if len(data) >= 2 {
		switch {
		case data[0] == 0xFE && data[1] == 0xFF:
			bigEndian = true
			data = data[2:]
		case data[0] == 0xFF && data[1] == 0xFE:
			data = data[2:]
		}
	}
	unit := func(i int) uint16 {
		if bigEndian {
			return uint16(data[i])<<8 | uint16(data[i+1])
		}
		return uint16(data[i+1])<<8 | uint16(data[i])
	}
	for i := 0; i < len(data); i += 2 {
		u := unit(i)
		switch {
		case u >= 0xD800 && u <= 0xDBFF: // high surrogate needs a low surrogate next
			if i+4 > len(data) {
				return "truncated surrogate pair"
			}
			next := unit(i + 2)
			if next < 0xDC00 || next > 0xDFFF {
				return "unpaired high surrogate"
			}
			i += 2
		case u >= 0xDC00 && u <= 0xDFFF:
			return "unpaired low surrogate"
		}
	}
	return ""
}

func validateUTF32(data []byte) string {
	if len(data)%4 != 0 {
		return "byte length not a multiple of 4 for utf-32"
	}
	bigEndian := false
	if len(data) >= 4 {
		switch {
		case data[0] == 0x00 && data[1] == 0x00 && data[2] == 0xFE && data[3] == 0xFF:
			bigEndian = true
			data = data[4:]
		case data[0] == 0xFF && data[1] == 0xFE && data[2] == 0x00 && data[3] == 0x00:
			data = data[4:]
		}
	}
	for i := 0; i < len(data); i += 4 {
		var u uint32
		if bigEndian {
			u = uint32(data[i])<<24 | uint32(data[i+1])<<16 | uint32(data[i+2])<<8 | uint32(data[i+3])
		} else {
			u = uint32(data[i+3])<<24 | uint32(data[i+2])<<16 | uint32(data[i+1])<<8 | uint32(data[i])
		}
		if u > 0x10FFFF {
			return "code point out of range"
		}
		if u >= 0xD800 && u <= 0xDFFF {
			return "surrogate code point in utf-32"
		}
	}
	return ""
}

// DetectDefault picks an encoding for text the caller did not classify.
// Text that is more than half CJK code points (unified ideographs, hiragana,
// katakana, hangul syllables) gets utf-16; everything else, including empty
// text, gets utf-8.
func DetectDefault(text string) Encoding {
	total, cjk := 0, 0
	for _, r := range text {
		total++
		if isCJK(r) {
			cjk++
		}
	}
	if total > 0 && float64(cjk)/float64(total) > 0.5 {
		return UTF16
	}
	return UTF8
}

func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
		return true
	case r >= 0x3040 && r <= 0x309F: // hiragana
		return true
	case r >= 0x30A0 && r <= 0x30FF: // katakana
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // hangul syllables
		return true
	}
	return false
}
