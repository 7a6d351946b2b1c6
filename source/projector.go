package source

import (
	"context"
	"image"

	"GpkgTiler/crs"

	"github.com/paulmach/orb"
)

//Projector the read/reproject pipeline in front of a provider
type Projector struct {
	Src   Provider
	Dst   crs.CRS
	toSrc *crs.Transform
}

// NewProjector serves reads in dst from src.
func NewProjector(src Provider, dst crs.CRS) (*Projector, error) {
	t, err := crs.NewTransform(dst, src.CRS())
	if err != nil {
		return nil, err
	}
	return &Projector{Src: src, Dst: dst, toSrc: t}, nil
}

func (p *Projector) Name() string { return p.Src.Name() }
func (p *Projector) Kind() Kind   { return p.Src.Kind() }
func (p *Projector) CRS() crs.CRS { return p.Dst }

// Read returns width×height pixels covering bound in the destination CRS.
// When the systems differ the source window is the transformed bound, and
// each output pixel centre is mapped back into it.
func (p *Projector) Read(ctx context.Context, bound orb.Bound, width, height int, progress ProgressFunc) (*image.RGBA, error) {
	return p.ReadWindow(ctx, p.toSrc.Bound(bound), bound, width, height, progress)
}

// ReadWindow is Read with the source window supplied in the source CRS. The
// window grows to the transformed bound wherever it falls short of it.
func (p *Projector) ReadWindow(ctx context.Context, window, bound orb.Bound, width, height int, progress ProgressFunc) (*image.RGBA, error) {
	if p.toSrc.IsIdentity() {
		return p.Src.Read(ctx, bound, width, height, progress)
	}
	if err := checkWindow(bound, width, height); err != nil {
		return nil, err
	}
	srcBound := window.Union(p.toSrc.Bound(bound))
	src, err := p.Src.Read(ctx, srcBound, width, height, progress)
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for j := 0; j < height; j++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := 0; i < width; i++ {
			sp := p.toSrc.Point(pixelCenter(bound, width, height, i, j))
			if c, ok := sampleNearest(src, srcBound, sp); ok {
				out.Set(i, j, c)
			}
		}
	}
	return out, nil
}
