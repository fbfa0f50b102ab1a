package forecast

import (
	"fmt"
	"math"
)

type Point struct {
	Day        int     `json:"day"`
	Density    float64 `json:"density"`
	Upper      float64 `json:"upper"`
	Lower      float64 `json:"lower"`
	Cumulative float64 `json:"cumulative"`
}

// Curve is the daily defect discovery profile over the project window.
type Curve struct {
	Sigma     float64 `json:"sigma"`
	Total     float64 `json:"total"`
	Points    []Point `json:"points"`
	PeakDay   int     `json:"peak_day"`
	PeakValue float64 `json:"peak_value"`
	// PeakOutsideWindow is set when sigma exceeds the duration; the peak is
	// then reported from the formula although no point covers it.
	PeakOutsideWindow bool `json:"peak_outside_window"`
}

// RayleighDensity is k * (t/sigma^2) * exp(-t^2 / (2 sigma^2)).
func RayleighDensity(t, sigma, k float64) float64 {
	s2 := sigma * sigma
	return k * (t / s2) * math.Exp(-t*t/(2*s2))
}

// BuildCurve samples the density on days 0..durationDays inclusive with a 95%
// band at an assumed 15% coefficient of variation.
func BuildCurve(k, sigma float64, durationDays int) (*Curve, error) {
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("%w: sigma must be positive, got %v", ErrInvalidParameter, sigma)
	}
	if durationDays <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %d days", ErrInvalidParameter, durationDays)
	}
	if k < 0 {
		return nil, fmt.Errorf("%w: defect total must not be negative, got %v", ErrInvalidParameter, k)
	}

	peak := int(math.Round(sigma))
	c := &Curve{
		Sigma:             sigma,
		Total:             k,
		Points:            make([]Point, 0, durationDays+1),
		PeakDay:           peak,
		PeakValue:         RayleighDensity(float64(peak), sigma, k),
		PeakOutsideWindow: sigma > float64(durationDays),
	}

	var cum float64
	for t := 0; t <= durationDays; t++ {
		d := RayleighDensity(float64(t), sigma, k)
		band := z95 * curveCV * d
		cum += d
		c.Points = append(c.Points, Point{
			Day:        t,
			Density:    d,
			Upper:      d + band,
			Lower:      math.Max(0, d-band),
			Cumulative: cum,
		})
	}
	return c, nil
}

// Sum returns the total density over the window.
func (c *Curve) Sum() float64 {
	if len(c.Points) == 0 {
		return 0
	}
	return c.Points[len(c.Points)-1].Cumulative
}
