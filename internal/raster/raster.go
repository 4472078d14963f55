// Package raster provides the grayscale preprocessing steps the gauge
// detectors run on decoded images: JPEG/PNG decode, grayscale conversion,
// Gaussian blur, binary thresholding and Sobel gradients.
package raster

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
)

// Decode reads an image file and converts it to 8-bit grayscale.
func Decode(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return ToGray(img), nil
}

// ToGray converts any image to 8-bit grayscale using the standard luma
// weights. Images that are already *image.Gray are returned as-is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// 16-bit channels in, 8-bit luma out (BT.601 weights)
			lum := (299*r + 587*g + 114*b) / 1000
			gray.SetGray(x, y, color.Gray{Y: uint8(lum >> 8)})
		}
	}
	return gray
}

// GaussianBlur applies a separable Gaussian blur with the given kernel
// radius (kernel size is 2*radius+1; radius 4 matches a 9x9 kernel).
// Sigma is derived from the radius the same way OpenCV does for an
// auto-sigma kernel.
func GaussianBlur(src *image.Gray, radius int) *image.Gray {
	if radius <= 0 {
		return src
	}
	kernel := gaussianKernel(radius)
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// Horizontal pass into a temp buffer, then vertical pass.
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				xx := clampInt(x+k, 0, w-1)
				sum += kernel[k+radius] * float64(src.GrayAt(bounds.Min.X+xx, bounds.Min.Y+y).Y)
			}
			tmp[y*w+x] = sum
		}
	}

	dst := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				yy := clampInt(y+k, 0, h-1)
				sum += kernel[k+radius] * tmp[yy*w+x]
			}
			dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: uint8(math.Round(sum))})
		}
	}
	return dst
}

func gaussianKernel(radius int) []float64 {
	size := 2*radius + 1
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	kernel := make([]float64, size)
	var total float64
	for i := 0; i < size; i++ {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		total += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= total
	}
	return kernel
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ThresholdInv produces an inverse binary image: pixels at or below the
// threshold become white (255), pixels above become black (0). Pixels for
// which mask returns false are always black. A dark needle on a bright dial
// comes out white.
func ThresholdInv(src *image.Gray, threshold uint8, mask func(x, y int) bool) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if mask != nil && !mask(x, y) {
				continue
			}
			if src.GrayAt(x, y).Y <= threshold {
				dst.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return dst
}

// Gradient holds per-pixel Sobel gradients for a w x h image, indexed
// row-major as y*Width+x.
type Gradient struct {
	Width  int
	Height int
	GX     []float64
	GY     []float64
	Mag    []float64
}

// At returns the gradient magnitude at (x, y).
func (g *Gradient) At(x, y int) float64 {
	return g.Mag[y*g.Width+x]
}

// Sobel computes 3x3 Sobel gradients over the image. Border pixels keep a
// zero gradient, which is fine for edge voting since the gauge face never
// touches the frame edge.
func Sobel(src *image.Gray) *Gradient {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	grad := &Gradient{
		Width:  w,
		Height: h,
		GX:     make([]float64, w*h),
		GY:     make([]float64, w*h),
		Mag:    make([]float64, w*h),
	}
	at := func(x, y int) float64 {
		return float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
	}
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) +
				-2*at(x-1, y) + 2*at(x+1, y) +
				-at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			i := y*w + x
			grad.GX[i] = gx
			grad.GY[i] = gy
			grad.Mag[i] = math.Hypot(gx, gy)
		}
	}
	return grad
}

// EdgePoint is a pixel whose gradient magnitude cleared the edge threshold,
// with its unit gradient direction.
type EdgePoint struct {
	X, Y   int
	NX, NY float64 // unit gradient (normal to the edge)
}

// EdgePoints extracts edge pixels from a gradient field. Points are returned
// in row-major scan order so downstream voting is deterministic.
func EdgePoints(grad *Gradient, threshold float64) []EdgePoint {
	var points []EdgePoint
	for y := 0; y < grad.Height; y++ {
		for x := 0; x < grad.Width; x++ {
			i := y*grad.Width + x
			m := grad.Mag[i]
			if m < threshold || m == 0 {
				continue
			}
			points = append(points, EdgePoint{
				X: x, Y: y,
				NX: grad.GX[i] / m,
				NY: grad.GY[i] / m,
			})
		}
	}
	return points
}
