package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// Codec labels with strict decoders.
const (
	CodecUTF8   = "utf-8"
	CodecASCII  = "ascii"
	CodecLatin1 = "iso-8859-1"
)

// DecodeError reports a byte the named codec cannot decode.
type DecodeError struct {
	Codec  string
	Byte   byte
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s codec can't decode byte 0x%02x in position %d", e.Codec, e.Byte, e.Offset)
}

// NormalizeCodec lower-cases a charset label and folds common aliases.
func NormalizeCodec(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	switch label {
	case "utf8", "utf_8":
		return CodecUTF8
	case "us-ascii", "ascii7", "646":
		return CodecASCII
	case "latin1", "latin-1", "iso8859-1", "iso_8859_1", "l1":
		return CodecLatin1
	}
	return label
}

// Decode converts raw bytes to a string using codec. In strict mode utf-8
// and ascii input must be valid or a *DecodeError is returned; lenient mode
// substitutes U+FFFD for undecodable bytes. Single byte codecs always decode.
func Decode(raw []byte, codec string, strict bool) (string, error) {
	codec = NormalizeCodec(codec)
	switch codec {
	case "", CodecUTF8:
		if !strict {
			return strings.ToValidUTF8(string(raw), "�"), nil
		}
		if offset := invalidUTF8Offset(raw); offset >= 0 {
			return "", &DecodeError{Codec: CodecUTF8, Byte: raw[offset], Offset: offset}
		}
		return string(raw), nil
	case CodecASCII:
		var b strings.Builder
		b.Grow(len(raw))
		for i, c := range raw {
			if c >= utf8.RuneSelf {
				if strict {
					return "", &DecodeError{Codec: CodecASCII, Byte: c, Offset: i}
				}
				b.WriteRune(utf8.RuneError)
				continue
			}
			b.WriteByte(c)
		}
		return b.String(), nil
	}

	enc, err := lookupEncoding(codec)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", codec, err)
	}
	return string(out), nil
}

func lookupEncoding(codec string) (encoding.Encoding, error) {
	if codec == CodecLatin1 {
		return charmap.ISO8859_1, nil
	}
	if enc, err := htmlindex.Get(codec); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(codec)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}
	return enc, nil
}

// pdftotextEncoding maps a codec to a pdftotext -enc name. Codecs pdftotext
// cannot emit map to "" and are decoded from its UTF-8 output instead.
func pdftotextEncoding(codec string) string {
	switch NormalizeCodec(codec) {
	case CodecUTF8:
		return "UTF-8"
	case CodecLatin1:
		return "Latin1"
	case CodecASCII:
		return "ASCII7"
	}
	return ""
}

func invalidUTF8Offset(raw []byte) int {
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}
