package normalizers

import (
	"testing"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		idType   models.IdentifierType
		raw      string
		expected string
	}{
		{name: "us phone with punctuation", idType: models.IdentifierTypePhone, raw: "(555) 123-0001", expected: "+15551230001"},
		{name: "phone with leading plus", idType: models.IdentifierTypePhone, raw: "+1 (555) 123-0001", expected: "+15551230001"},
		{name: "phone eleven digits with country code", idType: models.IdentifierTypePhone, raw: "1 555 123 0001", expected: "+15551230001"},
		{name: "international phone keeps digits", idType: models.IdentifierTypePhone, raw: "+44 20 7946 0958", expected: "+442079460958"},
		{name: "short code stays digits", idType: models.IdentifierTypePhone, raw: "22 333", expected: "22333"},
		{name: "phone without digits", idType: models.IdentifierTypePhone, raw: "unknown", expected: ""},
		{name: "email lower and trim", idType: models.IdentifierTypeEmail, raw: "  Jane.Doe@Example.COM ", expected: "jane.doe@example.com"},
		{name: "handle strips at", idType: models.IdentifierTypeSocialHandle, raw: "@JaneDoe", expected: "janedoe"},
		{name: "handle strips repeated at", idType: models.IdentifierTypeSocialHandle, raw: " @@ JaneDoe", expected: "janedoe"},
		{name: "username lower", idType: models.IdentifierTypeUsername, raw: "JDoe99", expected: "jdoe99"},
		{name: "plate", idType: models.IdentifierTypeVehiclePlate, raw: "abc-1234", expected: "ABC1234"},
		{name: "vin", idType: models.IdentifierTypeVIN, raw: "1hg cm8263 3a004352", expected: "1HGCM82633A004352"},
		{name: "imei", idType: models.IdentifierTypeIMEI, raw: "35-209900-176148-1", expected: "352099001761481"},
		{name: "imsi", idType: models.IdentifierTypeIMSI, raw: "310 150 123456789", expected: "310150123456789"},
		{name: "device id", idType: models.IdentifierTypeDeviceID, raw: "a1b2:c3d4.e5", expected: "A1B2C3D4E5"},
		{name: "other collapses spaces", idType: models.IdentifierTypeOther, raw: "  Locker   12  B ", expected: "Locker 12 B"},
		{name: "unknown type uses other", idType: models.IdentifierType("Pager"), raw: " x  y ", expected: "x y"},
		{name: "blank", idType: models.IdentifierTypeEmail, raw: "   ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.idType, tt.raw))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"(555) 123-0001",
		"+1 (555) 123-0001",
		"1-555-123-0001",
		"555.123.0001 ext 9",
		"+44 (0) 20 7946 0958",
		"@@Some.Handle",
		"@ @foo",
		"@\t@Bar",
		"  MiXeD  Case  Value ",
		"abc-123_XYZ",
		"",
		"+",
		"@",
	}

	for _, idType := range models.IdentifierTypes {
		for _, raw := range inputs {
			once := Normalize(idType, raw)
			assert.Equal(t, once, Normalize(idType, once), "type=%s raw=%q", idType, raw)
		}
	}
}

func TestStripAt_SkipsWhitespaceBetweenMarkers(t *testing.T) {
	assert.Equal(t, "foo", Normalize(models.IdentifierTypeSocialHandle, "@ @foo"))
	assert.Equal(t, "bar", Normalize(models.IdentifierTypeSocialHandle, "@\t@Bar"))
	assert.Equal(t, "some.handle", StripAt("@ \n@some.handle"))
}

func TestInferType(t *testing.T) {
	tests := []struct {
		raw      string
		expected models.IdentifierType
	}{
		{raw: "@jane", expected: models.IdentifierTypeSocialHandle},
		{raw: " @jane.doe@example.com", expected: models.IdentifierTypeSocialHandle},
		{raw: "jane@example.com", expected: models.IdentifierTypeEmail},
		{raw: "(555) 123-0001", expected: models.IdentifierTypePhone},
		{raw: "1234567", expected: models.IdentifierTypePhone},
		{raw: "123456", expected: models.IdentifierTypeUsername},
		{raw: "jane@localhost", expected: models.IdentifierTypeUsername},
		{raw: "jdoe", expected: models.IdentifierTypeUsername},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, InferType(tt.raw))
		})
	}
}

func TestParseIdentifierType(t *testing.T) {
	tests := []struct {
		input    string
		expected models.IdentifierType
	}{
		{input: "phone", expected: models.IdentifierTypePhone},
		{input: "EMAIL", expected: models.IdentifierTypeEmail},
		{input: "social_handle", expected: models.IdentifierTypeSocialHandle},
		{input: "device-id", expected: models.IdentifierTypeDeviceID},
		{input: "Vehicle Plate", expected: models.IdentifierTypeVehiclePlate},
		{input: "vin", expected: models.IdentifierTypeVIN},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseIdentifierType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := ParseIdentifierType("fax")
	assert.Error(t, err)
}

func TestNormalizeAlias(t *testing.T) {
	assert.Equal(t, "big mike", NormalizeAlias("  Big   MIKE "))
	assert.Equal(t, NormalizeAlias("Big Mike"), NormalizeAlias(NormalizeAlias("Big Mike")))
}

func TestRegistry(t *testing.T) {
	fn, ok := Get("nphone")
	require.True(t, ok)
	assert.Equal(t, "+15551230001", fn("555-123-0001"))

	_, ok = Get("missing")
	assert.False(t, ok)

	assert.Equal(t, "value", Apply("value", "missing"))
	assert.Equal(t, "ABC", ApplyChain(" a-b c ", "alphanumeric", "uppercase"))
}
