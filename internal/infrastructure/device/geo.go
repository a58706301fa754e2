package device

import (
	"context"
	"devctl/internal/domain"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const (
	DefaultLocateURL  = "http://ipinfo.io/json"
	DefaultWeatherURL = "http://wttr.in"
)

var (
	errNoLocation = errors.New("unable to get location info")
	errNoWeather  = errors.New("unable to get weather info")
)

// GeoClient resolves the device location from its public IP and fetches the
// current weather for it.
type GeoClient struct {
	locateURL  string
	weatherURL string
	client     *http.Client
}

func NewGeoClient(locateURL, weatherURL string, timeout time.Duration) *GeoClient {
	if locateURL == "" {
		locateURL = DefaultLocateURL
	}
	if weatherURL == "" {
		weatherURL = DefaultWeatherURL
	}
	return &GeoClient{
		locateURL:  locateURL,
		weatherURL: strings.TrimRight(weatherURL, "/"),
		client:     &http.Client{Timeout: timeout},
	}
}

type ipInfo struct {
	IP       string `json:"ip"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Timezone string `json:"timezone"`
}

func (g *GeoClient) Locate(ctx context.Context) (*domain.Location, error) {
	var info ipInfo
	if err := g.getJSON(ctx, g.locateURL, &info); err != nil {
		log.Debug("Location lookup failed", "err", err)
		return nil, fmt.Errorf("error getting location info: %w", err)
	}
	if info.Country == "" {
		return nil, errNoLocation
	}

	loc := &domain.Location{
		Country:  orUnknown(info.Country),
		Region:   orUnknown(info.Region),
		City:     orUnknown(info.City),
		Timezone: orUnknown(info.Timezone),
		IP:       orUnknown(info.IP),
	}
	if lat, lon, ok := strings.Cut(info.Loc, ","); ok {
		loc.Lat, _ = strconv.ParseFloat(lat, 64)
		loc.Lon, _ = strconv.ParseFloat(lon, 64)
	}
	log.Debug("Resolved location", "city", loc.City, "country", loc.Country)
	return loc, nil
}

type wttrReport struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		FeelsLikeC  string `json:"FeelsLikeC"`
		Humidity    string `json:"humidity"`
		Pressure    string `json:"pressure"`
		Visibility  string `json:"visibility"`
		UVIndex     string `json:"uvIndex"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
	Weather []json.RawMessage `json:"weather"`
}

func (g *GeoClient) Weather(ctx context.Context, loc *domain.Location) (*domain.WeatherReport, error) {
	if loc == nil {
		return nil, errNoLocation
	}
	u := g.weatherURL + "/" + url.PathEscape(loc.City) + "?format=j1"

	var rep wttrReport
	if err := g.getJSON(ctx, u, &rep); err != nil {
		log.Debug("Weather lookup failed", "err", err)
		return nil, fmt.Errorf("error getting weather info: %w", err)
	}
	if len(rep.Weather) == 0 || len(rep.CurrentCondition) == 0 {
		return nil, errNoWeather
	}

	cur := rep.CurrentCondition[0]
	w := &domain.WeatherReport{
		Location:    *loc,
		Temperature: cur.TempC,
		FeelsLike:   cur.FeelsLikeC,
		Humidity:    cur.Humidity,
		Pressure:    cur.Pressure,
		Visibility:  cur.Visibility,
		UVIndex:     cur.UVIndex,
	}
	if len(cur.WeatherDesc) > 0 {
		w.Description = cur.WeatherDesc[0].Value
	}
	log.Debug("Fetched weather", "city", loc.City, "temp", w.Temperature)
	return w, nil
}

func (g *GeoClient) getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
