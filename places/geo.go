package places

import (
	"math"
)

// earthRadius is the WGS84 equatorial radius used for sub-disk offsets.
const earthRadius = 6378137.0

// ringSize is the number of sub-disks placed around the centre one.
const ringSize = 6

// ringOffset is the distance of the ring sub-disks from the parent centre,
// as a fraction of the parent radius.
const ringOffset = 0.75

// subdivide returns the seven child disks of a saturated disk: one on the
// same centre and six on a ring at 0.75*radius, 60 degrees apart, all with
// half the parent radius. Offsets use a flat-earth small-angle conversion,
// which is fine at a few kilometres.
func subdivide(center LatLng, radius float64) []SearchArea {
	latBase := (radius * ringOffset / earthRadius) * (180 / math.Pi)
	lngBase := latBase / math.Cos(center.Lat*math.Pi/180)

	children := make([]SearchArea, 0, ringSize+1)
	children = append(children, SearchArea{Center: center, Radius: radius / 2})
	step := 2 * math.Pi / ringSize
	for i := range ringSize {
		angle := float64(i) * step
		children = append(children, SearchArea{
			Center: LatLng{
				Lat: center.Lat + math.Sin(angle)*latBase,
				Lng: center.Lng + math.Cos(angle)*lngBase,
			},
			Radius: radius / 2,
		})
	}
	return children
}

// haversine returns the great-circle distance in metres between two lat/lon points.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000 // Earth radius in metres
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δφ := (lat2 - lat1) * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	return R * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// geohash base32 alphabet
const ghChars = "0123456789bcdefghjkmnpqrstuvwxyz"

// encodeGeohash encodes lat/lon into a geohash string of the given precision.
func encodeGeohash(lat, lon float64, precision int) string {
	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0
	result := make([]byte, precision)
	bits := 0
	hashVal := 0
	isEven := true

	for i := 0; i < precision; {
		if isEven {
			mid := (minLon + maxLon) / 2
			if lon >= mid {
				hashVal = (hashVal << 1) | 1
				minLon = mid
			} else {
				hashVal <<= 1
				maxLon = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				hashVal = (hashVal << 1) | 1
				minLat = mid
			} else {
				hashVal <<= 1
				maxLat = mid
			}
		}
		isEven = !isEven
		bits++
		if bits == 5 {
			result[i] = ghChars[hashVal]
			i++
			bits = 0
			hashVal = 0
		}
	}
	return string(result)
}
