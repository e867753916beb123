package entities

import (
	"encoding/json"
	"strings"
)

// Category tags a substance. Unknown values decode to CategoryOther.
type Category string

const (
	CategoryTestosterone Category = "testosterone"
	CategoryNandrolone   Category = "nandrolone"
	CategoryTrenbolone   Category = "trenbolone"
	CategoryBoldenone    Category = "boldenone"
	CategoryStanozolol   Category = "stanozolol"
	CategoryOther        Category = "other"
)

// Categories lists every category in enumeration order
var Categories = []Category{
	CategoryTestosterone,
	CategoryNandrolone,
	CategoryTrenbolone,
	CategoryBoldenone,
	CategoryStanozolol,
	CategoryOther,
}

// ParseCategory maps a raw value onto a known category, falling back to CategoryOther
func ParseCategory(raw string) Category {
	raw = strings.TrimSpace(raw)
	for _, c := range Categories {
		if strings.EqualFold(raw, string(c)) {
			return c
		}
	}
	return CategoryOther
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = ParseCategory(raw)
	return nil
}

func (c *Category) UnmarshalText(b []byte) error {
	*c = ParseCategory(string(b))
	return nil
}

// Site is an injection site. Unknown values decode to SiteOther.
type Site string

const (
	SiteGluteus       Site = "gluteus"
	SiteQuadriceps    Site = "quadriceps"
	SiteDeltoid       Site = "deltoid"
	SiteVentroGluteal Site = "ventroGluteal"
	SiteTriceps       Site = "triceps"
	SiteOther         Site = "other"
)

// DefaultSite is recommended when nothing has been logged yet
const DefaultSite = SiteGluteus

// Sites lists every site in enumeration order. Order matters: it breaks ties
// in frequency and rotation rankings.
var Sites = []Site{
	SiteGluteus,
	SiteQuadriceps,
	SiteDeltoid,
	SiteVentroGluteal,
	SiteTriceps,
	SiteOther,
}

// ParseSite maps a raw value onto a known site, falling back to SiteOther
func ParseSite(raw string) Site {
	raw = strings.TrimSpace(raw)
	for _, s := range Sites {
		if strings.EqualFold(raw, string(s)) {
			return s
		}
	}
	return SiteOther
}

// IsKnownSite reports whether raw names an enumerated site exactly (case-insensitive)
func IsKnownSite(raw string) bool {
	raw = strings.TrimSpace(raw)
	for _, s := range Sites {
		if strings.EqualFold(raw, string(s)) {
			return true
		}
	}
	return false
}

// Rank returns the enumeration position of the site
func (s Site) Rank() int {
	for i, known := range Sites {
		if known == s {
			return i
		}
	}
	return len(Sites)
}

func (s *Site) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseSite(raw)
	return nil
}

func (s *Site) UnmarshalText(b []byte) error {
	*s = ParseSite(string(b))
	return nil
}
