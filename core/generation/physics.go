// Package generation derives the renewable generation forecast from the
// assembled weather feeds.
package generation

import (
	"math"
	"time"
)

// Irradiance estimates global solar irradiance in W/m2 from latitude, time
// and cloud cover, using solar declination and elevation with a cubic cloud
// attenuation term.
func Irradiance(lat float64, t time.Time, cloudCoverPct float64) float64 {
	doy := float64(t.YearDay())
	declination := 23.45 * math.Sin(rad(360.0/365.0*(doy-81)))

	hourOffset := float64(t.Hour()) + float64(t.Minute())/60 - 12
	hourAngle := 15 * hourOffset

	sinElevation := math.Sin(rad(lat))*math.Sin(rad(declination)) +
		math.Cos(rad(lat))*math.Cos(rad(declination))*math.Cos(rad(hourAngle))
	if sinElevation <= 0 {
		return 0
	}

	clearSky := 1000 * sinElevation
	cloudFactor := 1 - 0.75*math.Pow(cloudCoverPct/100, 3)
	return math.Max(0, clearSky*cloudFactor)
}

// PVOutput converts irradiance into PV power in kW.
func PVOutput(irradiance, capacityKW, efficiency float64) float64 {
	return irradiance / 1000 * capacityKW * efficiency
}

// WindOutput evaluates the standard turbine power curve. Below cut-in and
// above cut-out the turbine produces nothing; between cut-in and rated speed
// output grows with the cube of the normalized speed.
func WindOutput(windSpeed, capacityKW, cutIn, rated, cutOut float64) float64 {
	if windSpeed < cutIn || windSpeed > cutOut {
		return 0
	}
	if windSpeed >= rated {
		return capacityKW
	}
	frac := (windSpeed - cutIn) / (rated - cutIn)
	return capacityKW * frac * frac * frac
}

// OrientationFactor approximates losses from non-optimal panel placement:
// 5% per 45 degrees of azimuth away from south, 2% per 15 degrees of tilt
// away from 30 degrees.
func OrientationFactor(tilt, azimuth float64) float64 {
	azimuthLoss := math.Abs(azimuth-180) / 45 * 0.05
	tiltLoss := math.Abs(tilt-30) / 15 * 0.02
	return math.Max(0, 1-azimuthLoss-tiltLoss)
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
