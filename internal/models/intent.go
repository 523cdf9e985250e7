package models

// Filters are the structured constraints of a search.
type Filters struct {
	PriceLevels []int    `json:"priceLevels,omitempty" validate:"omitempty,dive,min=1,max=4"`
	Dietary     []string `json:"dietary,omitempty" validate:"omitempty,dive,max=40"`
	MustHave    []string `json:"mustHave,omitempty" validate:"omitempty,dive,max=40"`
	Cuisine     string   `json:"cuisine,omitempty" validate:"max=60"`
	OpenNow     bool     `json:"openNow,omitempty"`
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return len(f.PriceLevels) == 0 && len(f.Dietary) == 0 && len(f.MustHave) == 0 && f.Cuisine == "" && !f.OpenNow
}

// Merge returns f with every field that is set in override replaced.
func (f Filters) Merge(override *Filters) Filters {
	if override == nil {
		return f
	}
	out := f
	if len(override.PriceLevels) > 0 {
		out.PriceLevels = append([]int(nil), override.PriceLevels...)
	}
	if len(override.Dietary) > 0 {
		out.Dietary = append([]string(nil), override.Dietary...)
	}
	if len(override.MustHave) > 0 {
		out.MustHave = append([]string(nil), override.MustHave...)
	}
	if override.Cuisine != "" {
		out.Cuisine = override.Cuisine
	}
	if override.OpenNow {
		out.OpenNow = true
	}
	return out
}

// Intent is the structured interpretation of a raw query.
type Intent struct {
	Category   string  `json:"category"`
	Location   string  `json:"location,omitempty"`
	Filters    Filters `json:"filters"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// ProviderQuery is what the search engine asks a place provider for.
type ProviderQuery struct {
	Category string
	Center   *LatLng
	RadiusM  float64
	Filters  Filters
	Limit    int
}
