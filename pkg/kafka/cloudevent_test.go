package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudEvent_RoundTripThroughWire(t *testing.T) {
	type payload struct {
		BookingID string `json:"booking_id"`
		Amount    string `json:"amount"`
	}

	ce, err := NewCloudEvent("service-settlement", "booking.confirmed", payload{BookingID: "b-1", Amount: "350.00"})
	require.NoError(t, err)
	assert.Equal(t, "1.0", ce.SpecVersion)
	assert.NotEmpty(t, ce.ID)

	wire, err := json.Marshal(ce)
	require.NoError(t, err)

	parsed, err := ParseCloudEvent(wire)
	require.NoError(t, err)
	assert.Equal(t, "booking.confirmed", parsed.Type)

	var got payload
	require.NoError(t, parsed.ParseData(&got))
	assert.Equal(t, "350.00", got.Amount)
}

func TestParseCloudEvent_RejectsMissingType(t *testing.T) {
	_, err := ParseCloudEvent([]byte(`{"id":"x","data":{}}`))
	assert.Error(t, err)

	_, err = ParseCloudEvent([]byte(`not json`))
	assert.Error(t, err)
}
