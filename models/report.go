package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnknownToll is the sentinel used by the generator when a casualty count is not known.
const UnknownToll = "unknown"

// ErrMissingDate is returned when a report has no date.
var ErrMissingDate = errors.New("report date is required")

// DeathToll is either a known non-negative casualty count or unknown.
// The zero value is unknown.
type DeathToll struct {
	n     int
	known bool
}

// KnownToll returns a known death toll.
func KnownToll(n int) DeathToll {
	if n < 0 {
		n = 0
	}
	return DeathToll{n: n, known: true}
}

// UnknownDeathToll returns the unknown death toll.
func UnknownDeathToll() DeathToll {
	return DeathToll{}
}

// Value returns the count and whether it is known.
func (d DeathToll) Value() (int, bool) {
	return d.n, d.known
}

func (d DeathToll) IsKnown() bool {
	return d.known
}

// Count returns the count, treating unknown as 0.
func (d DeathToll) Count() int {
	if !d.known {
		return 0
	}
	return d.n
}

func (d DeathToll) String() string {
	if !d.known {
		return UnknownToll
	}
	return strconv.Itoa(d.n)
}

func (d DeathToll) MarshalJSON() ([]byte, error) {
	if !d.known {
		return json.Marshal(UnknownToll)
	}
	return json.Marshal(d.n)
}

func (d *DeathToll) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*d = UnknownDeathToll()
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, UnknownToll) {
			*d = UnknownDeathToll()
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("death_toll must be a number or %q, got %q", UnknownToll, s)
		}
		if n < 0 {
			return fmt.Errorf("death_toll must not be negative, got %d", n)
		}
		*d = KnownToll(n)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("death_toll must be a number or %q: %w", UnknownToll, err)
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return fmt.Errorf("death_toll must be a non-negative integer, got %v", f)
	}
	*d = KnownToll(int(f))
	return nil
}

// CountryIncident is one country's reported event.
type CountryIncident struct {
	Country   string    `json:"country"`
	DeathToll DeathToll `json:"death_toll"`
	Summary   string    `json:"summary"`
}

// UnmarshalJSON also accepts the older "name" and "deathToll" keys.
func (c *CountryIncident) UnmarshalJSON(data []byte) error {
	var aux struct {
		Country      string     `json:"country"`
		Name         string     `json:"name"`
		DeathToll    *DeathToll `json:"death_toll"`
		DeathTollAlt *DeathToll `json:"deathToll"`
		Summary      string     `json:"summary"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	c.Country = aux.Country
	if c.Country == "" {
		c.Country = aux.Name
	}
	switch {
	case aux.DeathToll != nil:
		c.DeathToll = *aux.DeathToll
	case aux.DeathTollAlt != nil:
		c.DeathToll = *aux.DeathTollAlt
	default:
		c.DeathToll = UnknownDeathToll()
	}
	c.Summary = aux.Summary
	return nil
}

// IncidentReport is the result of one data collection cycle.
// Formatters and renderers treat it as read-only.
type IncidentReport struct {
	Date      string            `json:"date"`
	Countries []CountryIncident `json:"countries"`
	Error     string            `json:"error,omitempty"`
}

// NewIncidentReport creates a report, normalizing nil countries to an empty slice.
func NewIncidentReport(date string, countries []CountryIncident) *IncidentReport {
	if countries == nil {
		countries = []CountryIncident{}
	}
	return &IncidentReport{Date: date, Countries: countries}
}

// Degraded creates a report that must not be published.
func Degraded(date, reason string) *IncidentReport {
	if reason == "" {
		reason = "unknown error"
	}
	return &IncidentReport{Date: date, Countries: []CountryIncident{}, Error: reason}
}

func (r *IncidentReport) UnmarshalJSON(data []byte) error {
	type alias IncidentReport
	var aux alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Countries == nil {
		aux.Countries = []CountryIncident{}
	}
	*r = IncidentReport(aux)
	return nil
}

// Validate checks what every downstream stage relies on.
func (r *IncidentReport) Validate() error {
	if r == nil {
		return errors.New("report is nil")
	}
	if strings.TrimSpace(r.Date) == "" {
		return ErrMissingDate
	}
	return nil
}

// HasError reports whether the report is degraded.
func (r *IncidentReport) HasError() bool {
	return r != nil && r.Error != ""
}

// TotalDeathToll sums the known tolls; unknown entries contribute 0.
func (r *IncidentReport) TotalDeathToll() int {
	total := 0
	for _, c := range r.Countries {
		total += c.DeathToll.Count()
	}
	return total
}
