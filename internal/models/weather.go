package models

import "time"

// WeatherData is a current-conditions summary from the weather provider.
// The forecast store never sees this; it feeds the forecast-writing caller.
type WeatherData struct {
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	Conditions  string    `json:"conditions"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"wind_speed"`
	FetchedAt   time.Time `json:"fetched_at"`
}
