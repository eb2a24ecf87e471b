package bike

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
)

func TestNext(t *testing.T) {
	legal := []struct {
		from Status
		ev   Event
		to   Status
	}{
		{StatusAvailable, EventReserve, StatusReserved},
		{StatusReserved, EventUnlock, StatusInRide},
		{StatusReserved, EventExpire, StatusAvailable},
		{StatusInRide, EventEndRide, StatusAvailable},
		{StatusMaintenance, EventRestore, StatusAvailable},
		{StatusMaintenance, EventExpire, StatusMaintenance},
		{StatusMaintenance, EventEndRide, StatusMaintenance},
		{StatusInRide, EventRelock, StatusAvailable},
		{StatusMaintenance, EventRelock, StatusMaintenance},
		{StatusAvailable, EventMaintain, StatusMaintenance},
		{StatusReserved, EventMaintain, StatusMaintenance},
		{StatusInRide, EventMaintain, StatusMaintenance},
		{StatusMaintenance, EventMaintain, StatusMaintenance},
	}
	for _, tc := range legal {
		t.Run(string(tc.from)+" "+string(tc.ev), func(t *testing.T) {
			to, err := Next(tc.from, tc.ev)

			require.NoError(t, err)
			assert.Equal(t, tc.to, to)
		})
	}

	illegal := []struct {
		from Status
		ev   Event
	}{
		{StatusAvailable, EventUnlock},
		{StatusAvailable, EventExpire},
		{StatusAvailable, EventEndRide},
		{StatusAvailable, EventRestore},
		{StatusReserved, EventReserve},
		{StatusReserved, EventEndRide},
		{StatusInRide, EventReserve},
		{StatusInRide, EventUnlock},
		{StatusInRide, EventExpire},
		{StatusReserved, EventRelock},
		{StatusAvailable, EventRelock},
		{StatusMaintenance, EventReserve},
		{StatusMaintenance, EventUnlock},
		{Status("STOLEN"), EventMaintain},
	}
	for _, tc := range illegal {
		t.Run(string(tc.from)+" "+string(tc.ev)+" rejected", func(t *testing.T) {
			_, err := Next(tc.from, tc.ev)

			assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
		})
	}
}

func TestRestoredStatus(t *testing.T) {
	cases := []struct {
		name string
		h    holder
		want Status
	}{
		{"nothing holds it", holder{}, StatusAvailable},
		{"reserved", holder{reserved: true}, StatusReserved},
		{"unlocked, ride not started", holder{reserved: true, unlocked: true}, StatusInRide},
		{"open ride", holder{riding: true}, StatusInRide},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, restoredStatus(tc.h))
		})
	}
}

func TestType(t *testing.T) {
	var typ Type
	require.NoError(t, typ.Scan("E_BIKE"))
	assert.Equal(t, EBike, typ)

	require.NoError(t, typ.Scan([]byte("STANDARD")))
	assert.Equal(t, Standard, typ)

	assert.Error(t, typ.Scan("TANDEM"))

	b, err := EBike.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"E_BIKE"`, string(b))
}
