package model

// Guess is a coordinate hint supplied by the source feed, used to bias
// provider results.
type Guess struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Address is the normalised input address of a geocoder task. All fields are
// optional; providers project the subset they understand.
type Address struct {
	Street      string `json:"street,omitempty"`
	Name        string `json:"name,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	District    string `json:"district,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	Guess       *Guess `json:"guess,omitempty"`
}

// Fields returns the non-empty textual fields as a map. The guess coordinate
// is not a textual field and is carried separately.
func (a Address) Fields() map[string]string {
	m := make(map[string]string, 9)
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("street", a.Street)
	put("name", a.Name)
	put("city", a.City)
	put("region", a.Region)
	put("postal_code", a.PostalCode)
	put("country", a.Country)
	put("country_code", a.CountryCode)
	put("district", a.District)
	put("house_number", a.HouseNumber)
	return m
}
