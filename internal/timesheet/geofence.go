package timesheet

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

type GeofenceResult struct {
	Verified       bool    `json:"verified"`
	DistanceMeters float64 `json:"distanceMeters"`
	RadiusMeters   float64 `json:"radiusMeters"`
}

// VerifyGeofence 判断打卡坐标是否落在地点的允许半径内
func VerifyGeofence(location *domain.Location, latitude, longitude, defaultRadius float64) GeofenceResult {
	radius := location.RadiusMeters
	if radius <= 0 {
		radius = defaultRadius
	}

	// orb.Point 的顺序是 {经度, 纬度}
	distance := geo.Distance(
		orb.Point{location.Longitude, location.Latitude},
		orb.Point{longitude, latitude},
	)

	return GeofenceResult{
		Verified:       distance <= radius,
		DistanceMeters: distance,
		RadiusMeters:   radius,
	}
}
