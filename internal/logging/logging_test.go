package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStatus(&buf, false)

	s.Say("Creating %s", "a.html")
	s.Debug("hidden %d", 1)
	s.Warn("Warning:", "slow down")
	s.Fail("Failed:", "boom")
	s.DryRun("would delete %d objects", 3)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "     s3_sync  Creating a.html", lines[0])
	assert.Contains(t, lines[1], "Warning: slow down")
	assert.Contains(t, lines[2], "Failed: boom")
	assert.Contains(t, lines[3], "DRY RUN: would delete 3 objects")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestStatusVerbose(t *testing.T) {
	var buf bytes.Buffer
	s := NewStatus(&buf, true)

	s.Debug("shown %d", 1)
	assert.Contains(t, buf.String(), "shown 1")
}

func TestStatusConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	s := NewStatus(&buf, false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Say("line")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, strings.Count(buf.String(), "s3_sync  line\n"))
}

func TestNilStatusIsSafe(t *testing.T) {
	var s *Status
	assert.NotPanics(t, func() { s.line("x") })
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(true, false, &buf).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	logger := NewLogger(false, false, &buf)
	logger.Debug("quiet")
	logger.Info("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "msg=loud")

	buf.Reset()
	NewLogger(false, true, &buf).Debug("verbose")
	assert.Contains(t, buf.String(), "msg=verbose")
}
