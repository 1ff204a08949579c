// Package pb implements the wire format of the accommodation content stream
// messages. The messages are small and stable, so they are encoded directly
// with protowire instead of generated code.
package pb

import (
	"math"

	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/encoding/protowire"
)

// Candidate is the inbound accommodation message of the source feed.
type Candidate struct {
	CandidateID    uint64
	Name           string
	Street         string
	District       string
	PostalCode     string
	City           string
	Region         string
	Country        string
	Longitude      float64
	Latitude       float64
	IsValidGeocode bool
}

// Field numbers of the candidate message. The key and flag are nested
// submessages.
const (
	candKey        = 1
	candName       = 2
	candStreet     = 3
	candDistrict   = 4
	candPostalCode = 5
	candCity       = 6
	candRegion     = 7
	candCountry    = 8
	candLongitude  = 9
	candLatitude   = 10
	candFlag       = 11

	keyCandidateID     = 1
	flagIsValidGeocode = 1
)

// UnmarshalCandidate decodes a candidate message, ignoring unknown fields.
func UnmarshalCandidate(data []byte) (Candidate, error) {
	var c Candidate
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Candidate{}, eris.New("pb: malformed candidate tag")
		}
		data = data[n:]

		switch {
		case num == candKey && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Candidate{}, eris.New("pb: malformed candidate key")
			}
			id, err := consumeSubUint(sub, keyCandidateID)
			if err != nil {
				return Candidate{}, err
			}
			c.CandidateID = id
			data = data[n:]

		case num == candFlag && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Candidate{}, eris.New("pb: malformed candidate flag")
			}
			v, err := consumeSubUint(sub, flagIsValidGeocode)
			if err != nil {
				return Candidate{}, err
			}
			c.IsValidGeocode = v != 0
			data = data[n:]

		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Candidate{}, eris.New("pb: malformed candidate string")
			}
			switch num {
			case candName:
				c.Name = string(v)
			case candStreet:
				c.Street = string(v)
			case candDistrict:
				c.District = string(v)
			case candPostalCode:
				c.PostalCode = string(v)
			case candCity:
				c.City = string(v)
			case candRegion:
				c.Region = string(v)
			case candCountry:
				c.Country = string(v)
			}
			data = data[n:]

		case typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return Candidate{}, eris.New("pb: malformed candidate double")
			}
			switch num {
			case candLongitude:
				c.Longitude = math.Float64frombits(v)
			case candLatitude:
				c.Latitude = math.Float64frombits(v)
			}
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Candidate{}, eris.New("pb: malformed candidate field")
			}
			data = data[n:]
		}
	}
	return c, nil
}

// MarshalCandidate encodes a candidate message. Zero-valued fields are
// omitted, except the key which is always present.
func MarshalCandidate(c Candidate) []byte {
	var key []byte
	key = protowire.AppendTag(key, keyCandidateID, protowire.VarintType)
	key = protowire.AppendVarint(key, c.CandidateID)

	var b []byte
	b = protowire.AppendTag(b, candKey, protowire.BytesType)
	b = protowire.AppendBytes(b, key)

	b = appendString(b, candName, c.Name)
	b = appendString(b, candStreet, c.Street)
	b = appendString(b, candDistrict, c.District)
	b = appendString(b, candPostalCode, c.PostalCode)
	b = appendString(b, candCity, c.City)
	b = appendString(b, candRegion, c.Region)
	b = appendString(b, candCountry, c.Country)
	b = appendDouble(b, candLongitude, c.Longitude)
	b = appendDouble(b, candLatitude, c.Latitude)

	if c.IsValidGeocode {
		var flag []byte
		flag = protowire.AppendTag(flag, flagIsValidGeocode, protowire.VarintType)
		flag = protowire.AppendVarint(flag, 1)
		b = protowire.AppendTag(b, candFlag, protowire.BytesType)
		b = protowire.AppendBytes(b, flag)
	}
	return b
}

// CandidateGeoData is the outbound locality resolution message.
type CandidateGeoData struct {
	CandidateID              uint64
	LocalityID               uint64
	LocalityNS               uint64
	AdministrativeDivisionID uint64
	AdministrativeDivisionNS uint64
	CountryID                uint64
	CountryNS                uint64
	Longitude                float64
	Latitude                 float64
	ValidGeoPoint            bool
}

// Field numbers of the candidate_geo_data message.
const (
	geoKey         = 2
	geoLocalityID  = 3
	geoLocalityNS  = 4
	geoAdmDivID    = 5
	geoAdmDivNS    = 6
	geoCountryID   = 7
	geoCountryNS   = 8
	geoLongitude   = 9
	geoLatitude    = 10
	geoValidPoint  = 11
	geoCandidateID = 1
)

// MarshalCandidateGeoData encodes the outbound message. Unset ids and
// coordinates are omitted so that a bare candidate id signals "no results".
func MarshalCandidateGeoData(g CandidateGeoData) []byte {
	var key []byte
	key = protowire.AppendTag(key, geoCandidateID, protowire.VarintType)
	key = protowire.AppendVarint(key, g.CandidateID)

	var b []byte
	b = protowire.AppendTag(b, geoKey, protowire.BytesType)
	b = protowire.AppendBytes(b, key)

	b = appendUint(b, geoLocalityID, g.LocalityID)
	b = appendUint(b, geoLocalityNS, g.LocalityNS)
	b = appendUint(b, geoAdmDivID, g.AdministrativeDivisionID)
	b = appendUint(b, geoAdmDivNS, g.AdministrativeDivisionNS)
	b = appendUint(b, geoCountryID, g.CountryID)
	b = appendUint(b, geoCountryNS, g.CountryNS)
	b = appendDouble(b, geoLongitude, g.Longitude)
	b = appendDouble(b, geoLatitude, g.Latitude)

	if g.ValidGeoPoint {
		b = protowire.AppendTag(b, geoValidPoint, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

// UnmarshalCandidateGeoData decodes the outbound message, ignoring unknown
// fields.
func UnmarshalCandidateGeoData(data []byte) (CandidateGeoData, error) {
	var g CandidateGeoData
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return CandidateGeoData{}, eris.New("pb: malformed geo data tag")
		}
		data = data[n:]

		switch {
		case num == geoKey && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return CandidateGeoData{}, eris.New("pb: malformed geo data key")
			}
			id, err := consumeSubUint(sub, geoCandidateID)
			if err != nil {
				return CandidateGeoData{}, err
			}
			g.CandidateID = id
			data = data[n:]

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return CandidateGeoData{}, eris.New("pb: malformed geo data varint")
			}
			switch num {
			case geoLocalityID:
				g.LocalityID = v
			case geoLocalityNS:
				g.LocalityNS = v
			case geoAdmDivID:
				g.AdministrativeDivisionID = v
			case geoAdmDivNS:
				g.AdministrativeDivisionNS = v
			case geoCountryID:
				g.CountryID = v
			case geoCountryNS:
				g.CountryNS = v
			case geoValidPoint:
				g.ValidGeoPoint = v != 0
			}
			data = data[n:]

		case typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return CandidateGeoData{}, eris.New("pb: malformed geo data double")
			}
			switch num {
			case geoLongitude:
				g.Longitude = math.Float64frombits(v)
			case geoLatitude:
				g.Latitude = math.Float64frombits(v)
			}
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return CandidateGeoData{}, eris.New("pb: malformed geo data field")
			}
			data = data[n:]
		}
	}
	return g, nil
}

// consumeSubUint extracts one varint field from a submessage.
func consumeSubUint(sub []byte, field protowire.Number) (uint64, error) {
	for len(sub) > 0 {
		num, typ, n := protowire.ConsumeTag(sub)
		if n < 0 {
			return 0, eris.New("pb: malformed submessage tag")
		}
		sub = sub[n:]
		if num == field && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(sub)
			if n < 0 {
				return 0, eris.New("pb: malformed submessage varint")
			}
			return v, nil
		}
		n = protowire.ConsumeFieldValue(num, typ, sub)
		if n < 0 {
			return 0, eris.New("pb: malformed submessage field")
		}
		sub = sub[n:]
	}
	return 0, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
