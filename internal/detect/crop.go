package detect

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/reid/internal/tracker"
)

// headFraction is the portion of the person box, measured from the top, that
// contains the head.
const headFraction = 0.4

// maxCropSize bounds the longer edge of the crop sent to the embedding server.
const maxCropSize = 256

// HeadCrop cuts the head region out of a frame, given the person bounding box.
// The region is the top 40% of the box, clamped to the frame. The crop is
// downscaled so its longer edge does not exceed 256px and re-encoded as JPEG.
func HeadCrop(frameImage []byte, box tracker.Rect) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(frameImage))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	bounds := src.Bounds()
	region := image.Rect(
		int(box.X),
		int(box.Y),
		int(box.X+box.Width),
		int(box.Y+box.Height*headFraction),
	).Intersect(bounds)
	if region.Empty() {
		return nil, fmt.Errorf("head region outside frame bounds")
	}

	dstW, dstH := region.Dx(), region.Dy()
	if dstW > maxCropSize || dstH > maxCropSize {
		if dstW >= dstH {
			dstH = dstH * maxCropSize / dstW
			dstW = maxCropSize
		} else {
			dstW = dstW * maxCropSize / dstH
			dstH = maxCropSize
		}
		if dstW < 1 {
			dstW = 1
		}
		if dstH < 1 {
			dstH = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, region, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding crop: %w", err)
	}
	return out.Bytes(), nil
}
