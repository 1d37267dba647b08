package domain

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerritoryCode(t *testing.T) {
	assert.Equal(t, "spokane-tribe", TerritoryCode("Spokane Tribe"))
	assert.Equal(t, "confederated-tribes-of-the-colville-reservation",
		TerritoryCode("Confederated Tribes of the Colville Reservation"))
	assert.Equal(t, "nez-perce", TerritoryCode("  Nez Perce  "))
	assert.Equal(t, "s-klallam", TerritoryCode("S'Klallam"))
}

func TestTerritoryFromFeature(t *testing.T) {
	poly := orb.Polygon{{{-121, 46}, {-120, 46}, {-120, 47}, {-121, 46}}}

	f := geojson.NewFeature(poly)
	f.Properties["NAME"] = "Yakama Nation"
	f.Properties["CODE"] = "YAKAMA"
	ter, err := TerritoryFromFeature(f)
	require.NoError(t, err)
	assert.Equal(t, "yakama", ter.Code)
	assert.Equal(t, "Yakama Nation", ter.Name)

	derived := geojson.NewFeature(poly)
	derived.Properties["LARName"] = "Spokane Tribe"
	ter, err = TerritoryFromFeature(derived)
	require.NoError(t, err)
	assert.Equal(t, "spokane-tribe", ter.Code)

	out := ter.Feature()
	assert.Equal(t, "spokane-tribe", out.ID)
	assert.Equal(t, "Spokane Tribe", out.Properties[PropName])
}

func TestTerritoryFromFeature_NumericCode(t *testing.T) {
	f := geojson.NewFeature(orb.Point{-120, 46})
	f.Properties["NAME"] = "Example"
	f.Properties["LARID"] = 1234.0
	ter, err := TerritoryFromFeature(f)
	require.NoError(t, err)
	assert.Equal(t, "1234", ter.Code)
}

func TestTerritoryFromFeature_Invalid(t *testing.T) {
	_, err := TerritoryFromFeature(geojson.NewFeature(orb.Point{-120, 46}))
	require.Error(t, err)

	noGeom := &geojson.Feature{Type: "Feature", Properties: geojson.Properties{"NAME": "Nowhere"}}
	_, err = TerritoryFromFeature(noGeom)
	require.Error(t, err)
}
