// Package catalog loads rooms, courier services, flights and airport codes
// from a YAML or JSON file.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"github.com/spf13/viper"
)

var ErrInvalidCatalog = errors.New("catalog: invalid entry")

// Writer persists catalog entries.
type Writer interface {
	UpsertResource(ctx context.Context, resource settlement.Resource) error
	UpsertFlight(ctx context.Context, flight settlement.Flight) error
}

type resourceEntry struct {
	ID        string `mapstructure:"id"`
	Kind      string `mapstructure:"kind"`
	Name      string `mapstructure:"name"`
	BasePrice int64  `mapstructure:"base_price"`
	Capacity  int    `mapstructure:"capacity"`
}

type flightEntry struct {
	ID               string `mapstructure:"id"`
	FlightNumber     string `mapstructure:"flight_number"`
	DepartureAirport string `mapstructure:"departure_airport"`
	ArrivalAirport   string `mapstructure:"arrival_airport"`
	DepartureAt      string `mapstructure:"departure_at"`
	Fare             int64  `mapstructure:"fare"`
}

type document struct {
	Resources []resourceEntry   `mapstructure:"resources"`
	Flights   []flightEntry     `mapstructure:"flights"`
	Airports  map[string]string `mapstructure:"airports"`
}

// Catalog is a validated catalog file.
type Catalog struct {
	Resources []settlement.Resource
	Flights   []settlement.Flight
	Airports  map[string]string
}

// Load reads and validates the catalog at path. The format follows the file extension.
func Load(path string) (Catalog, error) {
	reader := viper.New()
	reader.SetConfigFile(path)
	if err := reader.ReadInConfig(); err != nil {
		return Catalog{}, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var raw document
	if err := reader.Unmarshal(&raw); err != nil {
		return Catalog{}, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	return raw.validate()
}

func (raw document) validate() (Catalog, error) {
	catalog := Catalog{
		Resources: make([]settlement.Resource, 0, len(raw.Resources)),
		Flights:   make([]settlement.Flight, 0, len(raw.Flights)),
		Airports:  make(map[string]string, len(raw.Airports)),
	}
	seenResources := make(map[string]struct{}, len(raw.Resources))
	for index, entry := range raw.Resources {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return Catalog{}, fmt.Errorf("%w: resource %d has no id", ErrInvalidCatalog, index)
		}
		if _, duplicate := seenResources[id]; duplicate {
			return Catalog{}, fmt.Errorf("%w: duplicate resource %s", ErrInvalidCatalog, id)
		}
		seenResources[id] = struct{}{}
		kind := settlement.ResourceKind(strings.ToUpper(strings.TrimSpace(entry.Kind)))
		if kind != settlement.ResourceKindRoom && kind != settlement.ResourceKindCourier {
			return Catalog{}, fmt.Errorf("%w: resource %s kind %q", ErrInvalidCatalog, id, entry.Kind)
		}
		if entry.Capacity <= 0 {
			return Catalog{}, fmt.Errorf("%w: resource %s capacity %d", ErrInvalidCatalog, id, entry.Capacity)
		}
		if entry.BasePrice < 0 || (kind == settlement.ResourceKindRoom && entry.BasePrice == 0) {
			return Catalog{}, fmt.Errorf("%w: resource %s base price %d", ErrInvalidCatalog, id, entry.BasePrice)
		}
		catalog.Resources = append(catalog.Resources, settlement.Resource{
			ResourceID: id,
			Kind:       kind,
			Name:       strings.TrimSpace(entry.Name),
			BasePrice:  settlement.Amount(entry.BasePrice),
			Capacity:   entry.Capacity,
		})
	}
	seenFlights := make(map[string]struct{}, len(raw.Flights))
	for index, entry := range raw.Flights {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return Catalog{}, fmt.Errorf("%w: flight %d has no id", ErrInvalidCatalog, index)
		}
		if _, duplicate := seenFlights[id]; duplicate {
			return Catalog{}, fmt.Errorf("%w: duplicate flight %s", ErrInvalidCatalog, id)
		}
		seenFlights[id] = struct{}{}
		fare, err := settlement.NewAmount(entry.Fare)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: flight %s: %v", ErrInvalidCatalog, id, err)
		}
		departureAt, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.DepartureAt))
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: flight %s departure: %v", ErrInvalidCatalog, id, err)
		}
		catalog.Flights = append(catalog.Flights, settlement.Flight{
			FlightID:         id,
			FlightNumber:     strings.TrimSpace(entry.FlightNumber),
			DepartureAirport: strings.ToUpper(strings.TrimSpace(entry.DepartureAirport)),
			ArrivalAirport:   strings.ToUpper(strings.TrimSpace(entry.ArrivalAirport)),
			DepartureAt:      departureAt.UTC(),
			Fare:             fare,
		})
	}
	// viper lower-cases map keys; airport codes are compared upper-case.
	for external, internal := range raw.Airports {
		catalog.Airports[strings.ToUpper(external)] = strings.ToUpper(strings.TrimSpace(internal))
	}
	return catalog, nil
}

// AirportCodes returns the catalog's airport directory.
func (catalog Catalog) AirportCodes() settlement.AirportCodes {
	return settlement.NewAirportCodes(catalog.Airports)
}

// Import upserts every resource and flight. It stops at the first failure.
func (catalog Catalog) Import(ctx context.Context, writer Writer) error {
	for _, resource := range catalog.Resources {
		if err := writer.UpsertResource(ctx, resource); err != nil {
			return fmt.Errorf("catalog: resource %s: %w", resource.ResourceID, err)
		}
	}
	for _, flight := range catalog.Flights {
		if err := writer.UpsertFlight(ctx, flight); err != nil {
			return fmt.Errorf("catalog: flight %s: %w", flight.FlightID, err)
		}
	}
	return nil
}
