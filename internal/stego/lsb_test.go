package stego

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testPNG(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8(x + y), A: alpha})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHideReveal(t *testing.T) {
	tests := []struct {
		name  string
		alpha uint8
		msg   string
	}{
		{"opaque", 255, "THIS IS MY HIDDEN MESSAGE"},
		{"translucent", 128, "hello"},
		{"empty", 255, ""},
		{"utf8", 255, "héllo wörld"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Hide(testPNG(t, 32, 32, tt.alpha), tt.msg)
			if err != nil {
				t.Fatalf("Hide: %v", err)
			}
			got, err := Reveal(out)
			if err != nil {
				t.Fatalf("Reveal: %v", err)
			}
			if got != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, got)
			}
		})
	}
}

func TestHideBitLayout(t *testing.T) {
	// "1:A" = 0x31 0x3A 0x41 -> 24 bits -> 8 pixels.
	src := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for i := range src.Pix {
		src.Pix[i] = 0xFF
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	out, err := Hide(buf.Bytes(), "A")
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}

	var bits []byte
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			r, g, b, _ := decoded.At(x, y).RGBA()
			bits = append(bits, byte(r>>8)&1, byte(g>>8)&1, byte(b>>8)&1)
		}
	}
	want := []byte{
		0, 0, 1, 1, 0, 0, 0, 1, // '1'
		0, 0, 1, 1, 1, 0, 1, 0, // ':'
		0, 1, 0, 0, 0, 0, 0, 1, // 'A'
	}
	if !bytes.Equal(bits, want) {
		t.Errorf("bits mismatch:\n got %v\nwant %v", bits, want)
	}
}

func TestHideTooLong(t *testing.T) {
	_, err := Hide(testPNG(t, 2, 2, 255), "this message does not fit")
	if !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
}

func TestRevealNoMessage(t *testing.T) {
	// All channels 0xFF decode to 0xFF bytes, which is not a digit.
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if _, err := Reveal(buf.Bytes()); !errors.Is(err, ErrNoMessage) {
		t.Errorf("expected ErrNoMessage, got %v", err)
	}
}

func TestRevealTruncated(t *testing.T) {
	// Header claims 99 bytes but the image cannot hold them.
	out, err := Hide(testPNG(t, 4, 4, 255), "")
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	n := image.NewNRGBA(img.Bounds())
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			n.Set(x, y, img.At(x, y))
		}
	}
	payload := []byte("99:")
	var bits []byte
	for _, b := range payload {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>uint(i))&1)
		}
	}
	for i, bit := range bits {
		off := n.PixOffset((i/3)%4, (i/3)/4) + i%3
		n.Pix[off] = n.Pix[off]&^1 | bit
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, n); err != nil {
		t.Fatal(err)
	}
	if _, err := Reveal(buf.Bytes()); !errors.Is(err, ErrNoMessage) {
		t.Errorf("expected ErrNoMessage, got %v", err)
	}
}

func TestHideAcceptsJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	out, err := Hide(buf.Bytes(), "jpg")
	if err != nil {
		t.Fatalf("Hide: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("output is not PNG: %v", err)
	}
	if got, err := Reveal(out); err != nil || got != "jpg" {
		t.Errorf("Reveal = %q, %v", got, err)
	}
}

func TestRevealNotAnImage(t *testing.T) {
	if _, err := Reveal([]byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}
