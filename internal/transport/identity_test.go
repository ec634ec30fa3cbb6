package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultService(t *testing.T) {
	svc := DefaultService()
	assert.Equal(t, "DrinkSyncApp", svc.Name)
	assert.Equal(t, DefaultServiceUUID, svc.UUID.String())
	assert.Equal(t, uint8(1), svc.Channel)
	assert.Equal(t, "DrinkSyncApp (94f39d29-7d6d-437d-973b-fba39e49d4ee)", svc.String())
}

func TestNewService(t *testing.T) {
	svc, err := NewService("SampleServer", "c7506ec6-09d3-4979-9db3-3b85acad20fd")
	require.NoError(t, err)
	assert.Equal(t, "SampleServer", svc.Name)
	assert.Equal(t, "c7506ec6-09d3-4979-9db3-3b85acad20fd", svc.UUID.String())

	_, err = NewService("x", "not-a-uuid")
	assert.Error(t, err)
}

func TestParseRFCOMMAddress(t *testing.T) {
	tests := []struct {
		name    string
		peer    string
		wantBD  [6]byte
		wantCh  uint8
		wantErr bool
	}{
		{"default channel", "B8:27:EB:12:34:56", [6]byte{0x56, 0x34, 0x12, 0xEB, 0x27, 0xB8}, 1, false},
		{"explicit channel", "B8:27:EB:12:34:56/3", [6]byte{0x56, 0x34, 0x12, 0xEB, 0x27, 0xB8}, 3, false},
		{"channel out of range", "B8:27:EB:12:34:56/31", [6]byte{}, 0, true},
		{"bad mac", "scale.local", [6]byte{}, 0, true},
		{"eui64 rejected", "00:00:00:00:fe:80:00:00", [6]byte{}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bd, ch, err := ParseRFCOMMAddress(tt.peer, 0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBD, bd)
			assert.Equal(t, tt.wantCh, ch)
			assert.Equal(t, "B8:27:EB:12:34:56", FormatBDAddr(bd))
		})
	}
}
