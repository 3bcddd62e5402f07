package availability

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "09:00", want: "09:00"},
		{in: "17:30:00", want: "17:30"},
		{in: " 00:05 ", want: "00:05"},
		{in: "23:59", want: "23:59"},
		{in: "24:00", wantErr: true},
		{in: "9:00", wantErr: true},
		{in: "09:60", wantErr: true},
		{in: "09", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "+9:00", wantErr: true},
		{in: "09:+5", wantErr: true},
		{in: "-0:00", wantErr: true},
		{in: "12:30:+1", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseClock(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedTime))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.String())
		})
	}
}

func TestRuleJSON(t *testing.T) {
	raw := `{"day_of_week":"MONDAY","start_time":"09:00:00","end_time":"12:30","slot_duration_minutes":30,"is_active":true}`

	var r WeeklyRule
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	assert.Equal(t, NewClock(9, 0), r.StartTime)
	assert.Equal(t, NewClock(12, 30), r.EndTime)
	require.NoError(t, r.Validate())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"day_of_week":"MONDAY","start_time":"09:00","end_time":"12:30","slot_duration_minutes":30,"is_active":true}`, string(out))
}

func TestRuleJSON_MalformedTime(t *testing.T) {
	var r WeeklyRule
	err := json.Unmarshal([]byte(`{"start_time":"nine"}`), &r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedTime))

	err = json.Unmarshal([]byte(`{"end_time":"09:+5"}`), &r)
	assert.True(t, errors.Is(err, ErrMalformedTime))
}

func TestWeeklyRuleValidate(t *testing.T) {
	r := WeeklyRule{DayOfWeek: "FUNDAY", StartTime: MustClock("09:00"), EndTime: MustClock("10:00"), SlotDurationMinutes: 30}
	assert.ErrorIs(t, r.Validate(), ErrInvalidWeekday)

	r.DayOfWeek = Friday
	r.EndTime = r.StartTime
	assert.ErrorIs(t, r.Validate(), ErrInvalidRule)

	r.EndTime = MustClock("10:00")
	r.SlotDurationMinutes = -5
	assert.ErrorIs(t, r.Validate(), ErrInvalidRule)
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("saturday")
	require.NoError(t, err)
	assert.Equal(t, Saturday, d)
	assert.Equal(t, 5, d.Index())

	_, err = ParseWeekday("Sat")
	assert.ErrorIs(t, err, ErrInvalidWeekday)
}

func TestStatusBlocks(t *testing.T) {
	assert.True(t, StatusScheduled.Blocks())
	assert.True(t, StatusCompleted.Blocks())
	assert.True(t, StatusNoShow.Blocks())
	assert.False(t, StatusCancelled.Blocks())

	_, err := ParseStatus("done")
	assert.Error(t, err)
}
