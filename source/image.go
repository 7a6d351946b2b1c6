package source

import (
	"context"
	"fmt"
	"image"

	"GpkgTiler/crs"

	"github.com/paulmach/orb"
)

//Image an in-memory raster with a footprint
type Image struct {
	Label string
	// As overrides the reported kind, letting a local raster stand in for a
	// web layer.
	As     Kind
	Img    image.Image
	Bound  orb.Bound
	System crs.CRS
}

// NewImage georeferences img over bound in system c.
func NewImage(name string, img image.Image, bound orb.Bound, c crs.CRS) (*Image, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("image source %s is empty", name)
	}
	if err := checkWindow(bound, img.Bounds().Dx(), img.Bounds().Dy()); err != nil {
		return nil, err
	}
	return &Image{Label: name, As: KindImage, Img: img, Bound: bound, System: c}, nil
}

func (s *Image) Name() string { return s.Label }

func (s *Image) Kind() Kind {
	if s.As == "" {
		return KindImage
	}
	return s.As
}

func (s *Image) CRS() crs.CRS { return s.System }

func (s *Image) Read(ctx context.Context, bound orb.Bound, width, height int, progress ProgressFunc) (*image.RGBA, error) {
	if err := checkWindow(bound, width, height); err != nil {
		return nil, err
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for j := 0; j < height; j++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := 0; i < width; i++ {
			if c, ok := sampleNearest(s.Img, s.Bound, pixelCenter(bound, width, height, i, j)); ok {
				out.Set(i, j, c)
			}
		}
		report(progress, float64(j+1)*100/float64(height))
	}
	return out, nil
}
