package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status SearchStatus
		want   string
	}{
		{SearchStatusComplete, "complete"},
		{SearchStatusPartial, "partial"},
		{SearchStatusEmpty, "empty"},
		{SearchStatusNeedsConfirmation, "needs_confirmation"},
		{SearchStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestReportPartial(t *testing.T) {
	t.Parallel()

	r := &SearchReport{}
	assert.False(t, r.Partial())

	r.FailedChunks = append(r.FailedChunks, ChunkFailure{
		Codes:  []string{"75001", "75002"},
		Code:   CodeRateLimitExceeded,
		Reason: "rate limited twice",
	})
	assert.True(t, r.Partial())
}

func TestReportRowDisplayName(t *testing.T) {
	t.Parallel()

	row := ReportRow{CompanyName: "BOULANGERIE DUPONT"}
	assert.Equal(t, "BOULANGERIE DUPONT", row.DisplayName())

	row.Enseignes = "AU BON PAIN"
	assert.Equal(t, "BOULANGERIE DUPONT - AU BON PAIN", row.DisplayName())

	// Trade name identical to the company name adds nothing.
	row.Enseignes = "BOULANGERIE DUPONT"
	assert.Equal(t, "BOULANGERIE DUPONT", row.DisplayName())
}

func TestReportRowHasCoordinates(t *testing.T) {
	t.Parallel()

	assert.False(t, ReportRow{}.HasCoordinates())
	assert.True(t, ReportRow{Latitude: 45.76, Longitude: 4.83}.HasCoordinates())
	assert.True(t, ReportRow{Longitude: 4.83}.HasCoordinates())
}

func TestRunStatusForReport(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RunStatusFailed, RunStatusForReport(nil))

	complete := &SearchReport{Status: SearchStatusComplete}
	assert.Equal(t, RunStatusComplete, RunStatusForReport(complete))

	partial := &SearchReport{
		Status:       SearchStatusPartial,
		FailedChunks: []ChunkFailure{{Codes: []string{"69001"}}},
	}
	assert.Equal(t, RunStatusPartial, RunStatusForReport(partial))
}
