package normalize

import (
	"image"

	colorful "github.com/lucasb-eyer/go-colorful"

	"notiflink/internal/notification"
)

const (
	hueBuckets = 12
	// sampleEdge bounds how many pixels per axis are inspected.
	sampleEdge = 48
	minSat     = 0.25
	minVal     = 0.2
)

type hueBucket struct {
	weight  float64
	l, a, b float64
}

// dominantColor finds the most weighted hue among the saturated, opaque
// pixels of img and blends its members in Lab space. Grey-only images have
// no dominant color.
func dominantColor(img image.Image) (colorful.Color, bool) {
	if img == nil {
		return colorful.Color{}, false
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return colorful.Color{}, false
	}
	step := max(1, max(bounds.Dx(), bounds.Dy())/sampleEdge)

	var buckets [hueBuckets]hueBucket
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			px := img.At(x, y)
			if _, _, _, alpha := px.RGBA(); alpha < 0x8000 {
				continue
			}
			c, ok := colorful.MakeColor(px)
			if !ok {
				continue
			}
			h, s, v := c.Hsv()
			if s < minSat || v < minVal {
				continue
			}
			w := s * v
			l, a, b := c.Lab()
			bk := &buckets[int(h/(360.0/hueBuckets))%hueBuckets]
			bk.weight += w
			bk.l += l * w
			bk.a += a * w
			bk.b += b * w
		}
	}

	best := -1
	for i := range buckets {
		if buckets[i].weight > 0 && (best < 0 || buckets[i].weight > buckets[best].weight) {
			best = i
		}
	}
	if best < 0 {
		return colorful.Color{}, false
	}
	bk := buckets[best]
	return colorful.Lab(bk.l/bk.weight, bk.a/bk.weight, bk.b/bk.weight).Clamped(), true
}

// PebbleColor quantizes c onto the 64-colour palette.
func PebbleColor(c colorful.Color) byte {
	r, g, b := c.Clamped().RGB255()
	return notification.PebbleColorFromRGB(r, g, b)
}

// IconColor derives the palette colour of an icon, or the fallback colour.
func IconColor(img image.Image) byte {
	c, ok := dominantColor(img)
	if !ok {
		return notification.ColorFallback
	}
	return PebbleColor(c)
}
