package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTicketNumber(t *testing.T) {
	at := time.Date(2026, 1, 9, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "TKT-20260109-00001", FormatTicketNumber(at, 1))
	assert.Equal(t, "TKT-20260109-12345", FormatTicketNumber(at, 12345))

	// Numbers follow the UTC day.
	local := time.Date(2026, 1, 10, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	assert.Equal(t, "TKT-20260109-00007", FormatTicketNumber(local, 7))
}
