package grid

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var ErrNoFeatures = errors.New("geojson has no geometry")

// ExtentFromGeoJSON returns the bound of every geometry in a feature
// collection, so a grid can cover an existing layer.
func ExtentFromGeoJSON(data []byte) (orb.Bound, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("unable to unmarshal features: %w", err)
	}
	var collection orb.Collection
	for _, f := range fc.Features {
		if f.Geometry != nil {
			collection = append(collection, f.Geometry)
		}
	}
	if len(collection) == 0 {
		return orb.Bound{}, ErrNoFeatures
	}
	return collection.Bound(), nil
}

func LoadExtent(path string) (orb.Bound, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return orb.Bound{}, err
	}
	return ExtentFromGeoJSON(data)
}
