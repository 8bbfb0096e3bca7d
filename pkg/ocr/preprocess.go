package ocr

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	// MinOCRDimension is the smallest width and height handed to the engine;
	// smaller pages are upscaled.
	MinOCRDimension = 1000
	// ContrastFactor is the contrast boost applied after grayscale conversion.
	ContrastFactor = 1.2
	// maxOCRDimension bounds upscaling of degenerate, very thin images.
	maxOCRDimension = 20000
)

// Preprocess prepares a page image for recognition: grayscale, upscale to at
// least MinOCRDimension on both sides, then a fixed contrast boost.
//
// On failure the original image is returned together with the error, so
// callers may ignore the error and still OCR the page.
func Preprocess(img image.Image) (image.Image, error) {
	if img == nil {
		return img, errors.New("preprocess: nil image")
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return img, fmt.Errorf("preprocess: empty image %dx%d", b.Dx(), b.Dy())
	}
	gray := toGray(img)
	scaled, err := upscale(gray, MinOCRDimension)
	if err != nil {
		return img, err
	}
	return adjustContrast(scaled, ContrastFactor), nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// upscale scales src uniformly so that both sides are at least minSide pixels.
func upscale(src *image.Gray, minSide int) (*image.Gray, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w >= minSide && h >= minSide {
		return src, nil
	}
	scale := math.Max(float64(minSide)/float64(w), float64(minSide)/float64(h))
	nw := int(math.Ceil(float64(w) * scale))
	nh := int(math.Ceil(float64(h) * scale))
	if nw < minSide {
		nw = minSide
	}
	if nh < minSide {
		nh = minSide
	}
	if nw > maxOCRDimension || nh > maxOCRDimension {
		return nil, fmt.Errorf("preprocess: upscaled size %dx%d exceeds %d", nw, nh, maxOCRDimension)
	}
	dst := image.NewGray(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst, nil
}

// adjustContrast pushes each pixel away from the rounded mean luminance by
// factor, clamping to [0, 255]. A factor of 1 returns an identical copy.
func adjustContrast(src *image.Gray, factor float64) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	var sum uint64
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			sum += uint64(row[x])
		}
	}
	mean := math.Floor(float64(sum)/float64(w*h) + 0.5)

	var lut [256]uint8
	for v := range lut {
		out := mean + factor*(float64(v)-mean)
		lut[v] = uint8(math.Max(0, math.Min(255, math.Round(out))))
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		out := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			out[x] = lut[row[x]]
		}
	}
	return dst
}
