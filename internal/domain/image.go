package domain

import "io"

// ImageInput is the tagged union of the shapes an uploaded image can take:
// absent, a data-URI string, raw bytes, or an unread file part. The
// normalizer matches each case exhaustively instead of probing types.
type ImageInput interface {
	imageInput()
}

// AbsentImage means no value was supplied for the slot; the caller must
// retain whatever was previously stored.
type AbsentImage struct{}

// DataURIImage is a string field that may carry a base64 data URI. Strings
// that do not match the data-URI shape (e.g. an unchanged pass-through URL)
// normalize to "no new image", not to an error.
type DataURIImage struct {
	Raw string
}

// RawImage is image bytes already held in memory.
type RawImage struct {
	Data []byte
}

// FileImage is an uploaded file part whose bytes have not been read yet.
type FileImage struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

func (AbsentImage) imageInput()  {}
func (DataURIImage) imageInput() {}
func (RawImage) imageInput()     {}
func (FileImage) imageInput()    {}
