package vm

import (
	"bytes"
	"fmt"
)

// HeaderLength is the total size of the image header in bytes.
const HeaderLength = 64

// HeaderPrefix is the magic identifying a bytecode image.
var HeaderPrefix = []byte{0x45, 0x50, 0x49, 0x45}

// InvalidHeaderError is returned by Run when an image does not start with
// HeaderPrefix or is shorter than the header.
type InvalidHeaderError struct {
	Got []byte
}

func (e *InvalidHeaderError) Error() string {
	return fmt.Sprintf("invalid image header: got % x, want prefix % x", e.Got, HeaderPrefix)
}

// Header returns a fresh header: the magic prefix zero padded to
// HeaderLength.
func Header() []byte {
	h := make([]byte, HeaderLength)
	copy(h, HeaderPrefix)
	return h
}

// NewImage prepends the header to a code section.
func NewImage(code []byte) []byte {
	img := make([]byte, 0, HeaderLength+len(code))
	img = append(img, Header()...)
	return append(img, code...)
}

// VerifyHeader checks that image starts with a well-formed header.
func VerifyHeader(image []byte) error {
	n := len(HeaderPrefix)
	if len(image) < n {
		return &InvalidHeaderError{Got: append([]byte(nil), image...)}
	}
	if !bytes.Equal(image[:n], HeaderPrefix) || len(image) < HeaderLength {
		return &InvalidHeaderError{Got: append([]byte(nil), image[:n]...)}
	}
	return nil
}

// CodeSection returns the bytes after the header of a verified image.
func CodeSection(image []byte) ([]byte, error) {
	if err := VerifyHeader(image); err != nil {
		return nil, err
	}
	return image[HeaderLength:], nil
}
