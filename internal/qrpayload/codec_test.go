package qrpayload

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		session string
		meeting int
	}{
		{"S1", 5},
		{"jadwal-42", 1},
		{"3f6c2a1e-0000-4b7a-9d0e-6a3f5e1c2b11", 16},
		{"kelas \"A\" / ruang 2", 99},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%d", tc.session, tc.meeting), func(t *testing.T) {
			before := time.Now().UTC()
			text, issued, err := Encode(tc.session, tc.meeting)
			require.NoError(t, err)

			got, err := Decode(text)
			require.NoError(t, err)
			assert.Equal(t, tc.session, got.SessionID)
			assert.Equal(t, tc.meeting, got.MeetingNumber)
			assert.True(t, got.IssuedAt.Equal(issued.IssuedAt))
			assert.WithinDuration(t, before, got.IssuedAt, 2*time.Second)
		})
	}
}

func TestCodecClock(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	c := Codec{Now: func() time.Time { return fixed }}
	text, _, err := c.Encode("S1", 5)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id_jadwal":"S1","pertemuan":5,"timestamp":"2026-03-02T08:00:00Z"}`, text)
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	_, _, err := Encode("  ", 1)
	assert.Error(t, err)
	_, _, err = Encode("S1", 0)
	assert.Error(t, err)
}

func TestDecodeMalformed(t *testing.T) {
	inputs := []string{
		"",
		"not valid data",
		"{",
		"[1,2,3]",
		`{"pertemuan":5,"timestamp":"2026-03-02T08:00:00Z"}`,
		`{"id_jadwal":"S1","timestamp":"2026-03-02T08:00:00Z"}`,
		`{"id_jadwal":"S1","pertemuan":0,"timestamp":"2026-03-02T08:00:00Z"}`,
		`{"id_jadwal":"S1","pertemuan":"five","timestamp":"2026-03-02T08:00:00Z"}`,
		`{"id_jadwal":"S1","pertemuan":5}`,
		`{"id_jadwal":"S1","pertemuan":5,"timestamp":"yesterday"}`,
		`{"id_jadwal":"S1","pertemuan":5,"timestamp":"2026-03-02T08:00:00Z"} trailing`,
		string(bytes.Repeat([]byte("x"), MaxWireBytes+1)),
	}
	for _, in := range inputs {
		require.NotPanics(t, func() {
			_, err := Decode(in)
			require.Error(t, err, "input %q", in)
			assert.True(t, errors.Is(err, ErrDecode), "input %q", in)
			var de *DecodeError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestDecodeMeetingAsString(t *testing.T) {
	p, err := Decode(`{"id_jadwal":"S1","pertemuan":"7","timestamp":"2026-03-02T08:00:00+07:00"}`)
	require.NoError(t, err)
	assert.Equal(t, 7, p.MeetingNumber)
	assert.Equal(t, time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), p.IssuedAt)
}

func TestPNG(t *testing.T) {
	text, _, err := Encode("S1", 5)
	require.NoError(t, err)
	png, err := PNG(text, 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = PNG("", 256)
	assert.Error(t, err)
}
