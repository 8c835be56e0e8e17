// Package imaging turns captured photos into the immutable JPEG payload the
// extraction client sends inline. Non-JPEG input is re-encoded, oversized JPEG
// input is recompressed, and anything that does not sniff as an image is
// rejected before a network call is made.
package imaging
