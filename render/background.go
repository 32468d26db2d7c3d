package render

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Orientation reads the EXIF orientation tag, defaulting to 1.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// Orient applies an EXIF orientation (2-8) to img. Other values return img unchanged.
func Orient(img image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2: // mirror horizontal
				dx, dy = w-1-x, y
			case 3: // rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // mirror vertical
				dx, dy = x, h-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 clockwise
				dx, dy = h-1-y, x
			case 7: // transverse
				dx, dy = h-1-y, w-1-x
			case 8: // rotate 90 counter-clockwise
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// DecodeBackground decodes JPEG, PNG, GIF or WebP bytes and corrects EXIF orientation.
func DecodeBackground(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fail("decode", err)
	}
	return Orient(img, Orientation(data)), nil
}

// Cover scales img to fill w x h, preserving aspect ratio and cropping the overflow around the center.
func Cover(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if img == nil {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		return dst
	}

	sb := img.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	if sw == 0 || sh == 0 {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		return dst
	}

	scale := float64(w) / sw
	if s := float64(h) / sh; s > scale {
		scale = s
	}

	// Region of the source that lands on the canvas after scaling.
	cw := int(float64(w)/scale + 0.5)
	ch := int(float64(h)/scale + 0.5)
	if cw > sb.Dx() {
		cw = sb.Dx()
	}
	if ch > sb.Dy() {
		ch = sb.Dy()
	}
	x0 := sb.Min.X + (sb.Dx()-cw)/2
	y0 := sb.Min.Y + (sb.Dy()-ch)/2
	src := image.Rect(x0, y0, x0+cw, y0+ch)

	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, src, xdraw.Src, nil)
	return dst
}

// Darken applies a brightness change followed by a contrast change, both in [-1, 1], in place.
func Darken(img *image.RGBA, brightness, contrast float64) {
	factor := (contrast + 1) / (1 - contrast)
	adjust := func(v uint8) uint8 {
		c := float64(v)
		if brightness < 0 {
			c *= 1 + brightness
		} else {
			c += (255 - c) * brightness
		}
		c = factor*(c-127) + 127
		switch {
		case c < 0:
			return 0
		case c > 255:
			return 255
		}
		return uint8(c)
	}

	p := img.Pix
	for i := 0; i+3 < len(p); i += 4 {
		p[i] = adjust(p[i])
		p[i+1] = adjust(p[i+1])
		p[i+2] = adjust(p[i+2])
	}
}
