// Package clock resolves place names to time zones and formats local times.
package clock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	// zone database is embedded so resolution works on minimal images
	_ "time/tzdata"
)

// Layout renders times like "3:04 PM (-07:00)"
const Layout = "3:04 PM (-07:00)"

// ErrUnknownZone is returned when a place cannot be mapped to a time zone
var ErrUnknownZone = errors.New("unknown time zone")

var regions = []string{
	"America", "Europe", "Asia", "Africa", "Australia",
	"Pacific", "Atlantic", "Indian", "Antarctica",
	"America/Argentina", "America/Indiana", "America/Kentucky",
}

// cities that are not zone names themselves
var defaultAliases = map[string]string{
	"boston":        "America/New_York",
	"washington":    "America/New_York",
	"miami":         "America/New_York",
	"atlanta":       "America/New_York",
	"philadelphia":  "America/New_York",
	"san francisco": "America/Los_Angeles",
	"seattle":       "America/Los_Angeles",
	"las vegas":     "America/Los_Angeles",
	"houston":       "America/Chicago",
	"dallas":        "America/Chicago",
	"austin":        "America/Chicago",
	"montreal":      "America/Toronto",
	"beijing":       "Asia/Shanghai",
	"mumbai":        "Asia/Kolkata",
	"delhi":         "Asia/Kolkata",
	"new delhi":     "Asia/Kolkata",
	"bangalore":     "Asia/Kolkata",
	"hanoi":         "Asia/Bangkok",
	"osaka":         "Asia/Tokyo",
	"kyoto":         "Asia/Tokyo",
	"milan":         "Europe/Rome",
	"barcelona":     "Europe/Madrid",
	"munich":        "Europe/Berlin",
	"geneva":        "Europe/Zurich",
}

// Resolver maps free-form place names to locations
type Resolver struct {
	now     func() time.Time
	aliases map[string]string
}

// Option configures a Resolver
type Option func(*Resolver)

// WithNow overrides the time source
func WithNow(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithAlias maps a place name to a zone name
func WithAlias(place, zone string) Option {
	return func(r *Resolver) {
		r.aliases[normalizeKey(place)] = zone
	}
}

// NewResolver creates a Resolver with the built-in city aliases
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		now:     time.Now,
		aliases: make(map[string]string, len(defaultAliases)),
	}
	for k, v := range defaultAliases {
		r.aliases[k] = v
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds the time zone for place. Accepted forms are IANA names
// ("Europe/Paris"), bare zone cities ("paris", "new york"), known aliases
// ("boston") and UTC/GMT.
func (r *Resolver) Resolve(place string) (*time.Location, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, fmt.Errorf("%w: empty place", ErrUnknownZone)
	}

	for _, name := range r.candidates(place) {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownZone, place)
}

func (r *Resolver) candidates(place string) []string {
	key := normalizeKey(place)
	switch key {
	case "utc", "gmt", "zulu":
		return []string{"UTC"}
	case "local":
		// "Local" would silently return the server's zone
		return nil
	}

	var out []string
	if zone, ok := r.aliases[key]; ok {
		out = append(out, zone)
	}

	if strings.Contains(place, "/") {
		out = append(out, zoneCase(place), place)
		return out
	}

	city := zoneCase(place)
	for _, region := range regions {
		out = append(out, region+"/"+city)
	}
	return out
}

// Now returns the current time at place
func (r *Resolver) Now(place string) (time.Time, error) {
	loc, err := r.Resolve(place)
	if err != nil {
		return time.Time{}, err
	}
	return r.now().In(loc), nil
}

// Format renders t using Layout
func Format(t time.Time) string {
	return t.Format(Layout)
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// zoneCase turns "new york" or "america/new_york" into "New_York" / "America/New_York"
func zoneCase(s string) string {
	parts := strings.Split(strings.TrimSpace(s), "/")
	for i, part := range parts {
		words := strings.FieldsFunc(part, func(r rune) bool { return r == ' ' || r == '_' })
		for j, w := range words {
			words[j] = titleWord(w)
		}
		parts[i] = strings.Join(words, "_")
	}
	return strings.Join(parts, "/")
}

// titleWord capitalizes each hyphen-separated piece: "port-au-prince" -> "Port-Au-Prince"
func titleWord(w string) string {
	pieces := strings.Split(strings.ToLower(w), "-")
	for i, p := range pieces {
		if p == "" {
			continue
		}
		pieces[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(pieces, "-")
}
