package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // register decoder for PNG thumbnails
	"os"

	"github.com/autorenamer/autorenamer/pkg/errcodes"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder for sticker-style thumbnails
)

const (
	// MaxSide and MaxBytes are the platform's limits for upload thumbnails.
	MaxSide  = 320
	MaxBytes = 200 * 1024

	startQuality = 85
	minQuality   = 40
)

// Normalize converts the image at src into a JPEG thumbnail at dst that fits
// within MaxSide on both sides and MaxBytes in size.
func Normalize(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errcodes.Storage(errors.WithStack(err))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return errcodes.Storage(errors.Wrap(err, "failed to decode thumbnail"))
	}

	out, err := Encode(img)
	if err != nil {
		return err
	}

	if err := os.WriteFile(dst, out, 0o600); err != nil {
		return errcodes.Storage(errors.WithStack(err))
	}
	return nil
}

// Encode scales img down to fit MaxSide and encodes it as JPEG, lowering the
// quality until the result fits MaxBytes.
func Encode(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	w, h := Fit(bounds.Dx(), bounds.Dy(), MaxSide)

	// JPEG has no alpha, so transparent areas are flattened onto white.
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	for quality := startQuality; quality >= minQuality; quality -= 15 {
		buf.Reset()
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
			return nil, errcodes.Storage(errors.WithStack(err))
		}
		if buf.Len() <= MaxBytes {
			return buf.Bytes(), nil
		}
	}
	return nil, errcodes.Storage(errors.Errorf("thumbnail still %d bytes at minimum quality", buf.Len()))
}

// Fit returns dimensions no larger than max on either side that preserve the
// aspect ratio of w by h. Images that already fit are left alone.
func Fit(w, h, max int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
