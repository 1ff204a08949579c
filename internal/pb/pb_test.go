package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCandidateRoundTrip(t *testing.T) {
	in := Candidate{
		CandidateID:    42,
		Name:           "Hotel Adlon",
		Street:         "Unter den Linden 77",
		PostalCode:     "10117",
		City:           "Berlin",
		Country:        "Germany",
		Longitude:      13.38,
		Latitude:       52.516,
		IsValidGeocode: true,
	}

	out, err := UnmarshalCandidate(MarshalCandidate(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCandidateSparseMessage(t *testing.T) {
	out, err := UnmarshalCandidate(MarshalCandidate(Candidate{CandidateID: 7}))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), out.CandidateID)
	assert.Empty(t, out.City)
	assert.False(t, out.IsValidGeocode)
}

func TestCandidateIgnoresUnknownFields(t *testing.T) {
	b := MarshalCandidate(Candidate{CandidateID: 7, City: "Berlin"})
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 12345)

	out, err := UnmarshalCandidate(b)
	require.NoError(t, err)
	assert.Equal(t, "Berlin", out.City)
}

func TestCandidateMalformed(t *testing.T) {
	_, err := UnmarshalCandidate([]byte{0x0a})
	assert.Error(t, err)
}

func TestCandidateGeoDataRoundTrip(t *testing.T) {
	in := CandidateGeoData{
		CandidateID:   42,
		LocalityID:    1001,
		LocalityNS:    200,
		CountryID:     104,
		CountryNS:     200,
		Longitude:     13.38,
		Latitude:      52.516,
		ValidGeoPoint: true,
	}

	out, err := UnmarshalCandidateGeoData(MarshalCandidateGeoData(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCandidateGeoDataNoResults(t *testing.T) {
	// a failed candidate streams out only its id
	b := MarshalCandidateGeoData(CandidateGeoData{CandidateID: 9})

	out, err := UnmarshalCandidateGeoData(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), out.CandidateID)
	assert.Zero(t, out.LocalityID)
	assert.False(t, out.ValidGeoPoint)
}
