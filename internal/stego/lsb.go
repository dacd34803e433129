// Package stego hides text in the least significant bits of image pixels.
//
// The payload "<length>:<message>" is written 8 bits per byte, most
// significant bit first, into the red, green and blue channels of each pixel
// in row-major order. Alpha is left untouched.
package stego

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strconv"
)

var (
	// ErrMessageTooLong means the image has fewer color channels than the
	// payload has bits.
	ErrMessageTooLong = errors.New("message too long for image")
	// ErrNoMessage means no valid payload header was found.
	ErrNoMessage = errors.New("impossible to detect message")
)

// maxHeaderDigits bounds the length prefix so random pixel data fails fast.
const maxHeaderDigits = 10

// Hide embeds message in the image data and returns it encoded as PNG.
func Hide(data []byte, message string) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	img := toNRGBA(src)

	payload := []byte(strconv.Itoa(len(message)) + ":" + message)
	bits := make([]byte, 0, len(payload)*8+2)
	for _, b := range payload {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>uint(i))&1)
		}
	}
	for len(bits)%3 != 0 {
		bits = append(bits, 0)
	}

	bounds := img.Bounds()
	if bounds.Dx()*bounds.Dy()*3 < len(bits) {
		return nil, fmt.Errorf("%w: need %d channels, image has %d",
			ErrMessageTooLong, len(bits), bounds.Dx()*bounds.Dy()*3)
	}

	n := 0
	for y := bounds.Min.Y; y < bounds.Max.Y && n < len(bits); y++ {
		for x := bounds.Min.X; x < bounds.Max.X && n < len(bits); x++ {
			off := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				img.Pix[off+c] = img.Pix[off+c]&^1 | bits[n]
				n++
			}
		}
	}

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// Reveal extracts a message embedded by Hide.
func Reveal(data []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	img := toNRGBA(src)
	bounds := img.Bounds()

	var (
		cur    byte
		count  int
		header []byte
		msg    []byte
		limit  = -1
	)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			off := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				cur = cur<<1 | img.Pix[off+c]&1
				count++
				if count < 8 {
					continue
				}
				b := cur
				cur, count = 0, 0

				if limit < 0 {
					if b != ':' {
						if b < '0' || b > '9' || len(header) >= maxHeaderDigits {
							return "", ErrNoMessage
						}
						header = append(header, b)
						continue
					}
					if len(header) == 0 {
						return "", ErrNoMessage
					}
					limit, _ = strconv.Atoi(string(header))
				} else {
					msg = append(msg, b)
				}
				if len(msg) == limit {
					return string(msg), nil
				}
			}
		}
	}
	return "", fmt.Errorf("%w: image ended before the message", ErrNoMessage)
}

func toNRGBA(src image.Image) *image.NRGBA {
	if img, ok := src.(*image.NRGBA); ok {
		return img
	}
	b := src.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)
	return img
}
