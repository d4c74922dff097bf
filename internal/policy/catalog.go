package policy

// Catalog maps an institution's admission and unit codes to display names.
// It is built once per institution and only read afterwards.
type Catalog struct {
	admissions map[string]string
	units      map[string]string
}

// NewCatalog copies the given maps so later changes to them are not seen.
func NewCatalog(admissions, units map[string]string) Catalog {
	c := Catalog{
		admissions: make(map[string]string, len(admissions)),
		units:      make(map[string]string, len(units)),
	}
	for k, v := range admissions {
		c.admissions[k] = v
	}
	for k, v := range units {
		c.units[k] = v
	}
	return c
}

// HasAdmission reports whether code is a known admission track.
func (c Catalog) HasAdmission(code string) bool {
	_, ok := c.admissions[code]
	return ok
}

func (c Catalog) HasUnit(code string) bool {
	_, ok := c.units[code]
	return ok
}

// AdmissionName returns the display name, or the code itself if unknown.
func (c Catalog) AdmissionName(code string) string {
	if n, ok := c.admissions[code]; ok && n != "" {
		return n
	}
	return code
}

// UnitName returns the display name, or the code itself if unknown.
func (c Catalog) UnitName(code string) string {
	if n, ok := c.units[code]; ok && n != "" {
		return n
	}
	return code
}

// Admissions returns a copy of the admission code map.
func (c Catalog) Admissions() map[string]string {
	out := make(map[string]string, len(c.admissions))
	for k, v := range c.admissions {
		out[k] = v
	}
	return out
}

// Units returns a copy of the unit code map.
func (c Catalog) Units() map[string]string {
	out := make(map[string]string, len(c.units))
	for k, v := range c.units {
		out[k] = v
	}
	return out
}
