package embed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, "reviews", 100, 10, nil)

	tracker.Start()
	tracker.Increment(25)
	tracker.Increment(25)
	tracker.Increment(50)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
	assert.Equal(t, int64(100), tracker.Current())

	output := buf.String()
	assert.Contains(t, output, "Embedding reviews: 100/100")
	assert.Contains(t, output, "100.0%")
}

func TestProgressTracker_ClampsToTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, "applications", 10, 1, nil)
	tracker.Start()
	tracker.Increment(50)
	assert.Equal(t, int64(10), tracker.Current())
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, "applications", 10, 1, nil)
	tracker.Increment(5)
	tracker.Finish()
	assert.Zero(t, tracker.Current())
	assert.Zero(t, tracker.Elapsed())
	assert.Empty(t, buf.String())
}

func TestProgressTracker_FinishKeepsPartialCount(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, "applications", 100, 1000, nil)
	tracker.Start()
	tracker.Increment(40)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "40/100")
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestProgressTracker_Suffix(t *testing.T) {
	var buf bytes.Buffer
	fresh := true
	tracker := NewProgressTracker(&buf, "reviews", 4, 1, func() (string, bool) {
		return "cpu=12.0%", fresh
	})
	tracker.Start()
	tracker.Increment(1)
	assert.Contains(t, buf.String(), " | cpu=12.0%")

	buf.Reset()
	fresh = false
	tracker.Increment(1)
	assert.NotContains(t, buf.String(), "cpu=")
}
