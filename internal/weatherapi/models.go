package weatherapi

import (
	"time"

	"github.com/i474232898/weathermap/internal/geo"
)

type apiLoc struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

func (l apiLoc) coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: l.Lat, Lon: l.Long}
}

type apiPlace struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Country string `json:"country"`
}

func (p apiPlace) place(c geo.Coordinate) Place {
	return Place{Name: p.Name, State: p.State, Country: p.Country, Coordinate: &c}
}

func unixTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

// Observation is the latest (or an archived) report from one station.
type Observation struct {
	StationID   string    `json:"stationId"`
	Place       Place     `json:"place"`
	Time        time.Time `json:"time"`
	TempC       *float64  `json:"tempC,omitempty"`
	DewpointC   *float64  `json:"dewpointC,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	PressureMB  *float64  `json:"pressureMb,omitempty"`
	WindKPH     *float64  `json:"windKph,omitempty"`
	WindDir     string    `json:"windDir,omitempty"`
	Weather     string    `json:"weather,omitempty"`
	WeatherCode string    `json:"weatherCode,omitempty"`
	Icon        string    `json:"icon,omitempty"`
}

type apiOb struct {
	Timestamp   int64    `json:"timestamp"`
	TempC       *float64 `json:"tempC"`
	DewpointC   *float64 `json:"dewpointC"`
	Humidity    *float64 `json:"humidity"`
	PressureMB  *float64 `json:"pressureMB"`
	WindKPH     *float64 `json:"windKPH"`
	WindDir     string   `json:"windDir"`
	Weather     string   `json:"weather"`
	WeatherCode string   `json:"weatherPrimaryCoded"`
	Icon        string   `json:"icon"`
}

func (o apiOb) observation(id string, p Place) Observation {
	return Observation{
		StationID:   id,
		Place:       p,
		Time:        unixTime(o.Timestamp),
		TempC:       o.TempC,
		DewpointC:   o.DewpointC,
		Humidity:    o.Humidity,
		PressureMB:  o.PressureMB,
		WindKPH:     o.WindKPH,
		WindDir:     o.WindDir,
		Weather:     o.Weather,
		WeatherCode: o.WeatherCode,
		Icon:        o.Icon,
	}
}

type apiObservation struct {
	ID    string   `json:"id"`
	Loc   apiLoc   `json:"loc"`
	Place apiPlace `json:"place"`
	Ob    apiOb    `json:"ob"`
}

type apiArchive struct {
	ID      string   `json:"id"`
	Loc     apiLoc   `json:"loc"`
	Place   apiPlace `json:"place"`
	Periods []struct {
		Ob apiOb `json:"ob"`
	} `json:"periods"`
}

// ObservationSummary is a daily roll-up of a station's observations.
type ObservationSummary struct {
	StationID string    `json:"stationId"`
	Date      time.Time `json:"date"`
	MaxTempC  *float64  `json:"maxTempC,omitempty"`
	MinTempC  *float64  `json:"minTempC,omitempty"`
	AvgTempC  *float64  `json:"avgTempC,omitempty"`
	PrecipMM  *float64  `json:"precipMm,omitempty"`
	Count     int       `json:"count"`
}

type apiSummary struct {
	ID      string `json:"id"`
	Periods []struct {
		Summary struct {
			Timestamp int64 `json:"timestamp"`
			Count     int   `json:"count"`
			Temp      struct {
				MaxC *float64 `json:"maxC"`
				MinC *float64 `json:"minC"`
				AvgC *float64 `json:"avgC"`
			} `json:"temp"`
			Precip struct {
				TotalMM *float64 `json:"totalMM"`
			} `json:"precip"`
		} `json:"summary"`
	} `json:"periods"`
}

// ForecastPeriod is one interval (day or hour) of a forecast.
type ForecastPeriod struct {
	Time         time.Time `json:"time"`
	MaxTempC     *float64  `json:"maxTempC,omitempty"`
	MinTempC     *float64  `json:"minTempC,omitempty"`
	TempC        *float64  `json:"tempC,omitempty"`
	PoP          *float64  `json:"pop,omitempty"`
	PrecipMM     *float64  `json:"precipMm,omitempty"`
	WindSpeedKPH *float64  `json:"windSpeedKph,omitempty"`
	Weather      string    `json:"weather,omitempty"`
	Icon         string    `json:"icon,omitempty"`
}

// Forecast is the set of periods returned for one place.
type Forecast struct {
	Place    Place            `json:"place"`
	Interval string           `json:"interval"`
	Periods  []ForecastPeriod `json:"periods"`
}

type apiForecast struct {
	Loc      apiLoc `json:"loc"`
	Interval string `json:"interval"`
	Periods  []struct {
		Timestamp    int64    `json:"timestamp"`
		MaxTempC     *float64 `json:"maxTempC"`
		MinTempC     *float64 `json:"minTempC"`
		TempC        *float64 `json:"avgTempC"`
		PoP          *float64 `json:"pop"`
		PrecipMM     *float64 `json:"precipMM"`
		WindSpeedKPH *float64 `json:"windSpeedKPH"`
		Weather      string   `json:"weather"`
		Icon         string   `json:"icon"`
	} `json:"periods"`
}

// Listing is a generic nearby result from any geographic endpoint, used for
// "closest to" listings.
type Listing struct {
	ID         string         `json:"id"`
	Coordinate geo.Coordinate `json:"coordinate"`
	Place      Place          `json:"place"`
	Time       time.Time      `json:"time"`
	Details    map[string]any `json:"details,omitempty"`
}
