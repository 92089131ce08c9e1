package minlp

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func solvedIntBall(t *testing.T) *Solver {
	s := New()
	assert.NoError(t, s.SetOption("dual.pool_limit_strategy", "unlimited"))
	assert.Equal(t, CreationOK, s.SetProblem(intBallProblem(t)))
	status, err := s.Solve(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, ModelStatusOptimal, status)
	return s
}

func TestWriteResultsXML(t *testing.T) {
	s := solvedIntBall(t)

	var buf bytes.Buffer
	assert.NoError(t, s.WriteResultsXML(&buf))
	out := buf.String()

	assert.Contains(t, out, "<optimizationResults")
	assert.Contains(t, out, s.Results().RunID)
	assert.Contains(t, out, "<modelStatus>optimal</modelStatus>")
	assert.Contains(t, out, `name="x"`)
	assert.Contains(t, out, "<iteration ")
}

func TestTraceLine(t *testing.T) {
	s := solvedIntBall(t)

	line := s.TraceLine("int-ball", 1500*time.Millisecond)
	fields := strings.Split(line, ",")
	assert.Len(t, fields, 9)
	assert.Equal(t, "int-ball", fields[0])
	assert.Equal(t, "MINLP", fields[1])
	assert.Equal(t, "optimal", fields[3])
	assert.Equal(t, "-2", fields[5])
	assert.Equal(t, "1.500", fields[7])
}

func TestWriteSolFile(t *testing.T) {
	s := solvedIntBall(t)

	var buf bytes.Buffer
	assert.NoError(t, s.WriteSolFile(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"status optimal",
		"objective -2",
		"x -2",
	}, lines)
}

func TestReportsWithoutResults(t *testing.T) {
	s := New()
	var buf bytes.Buffer
	assert.Error(t, s.WriteResultsXML(&buf))
	assert.Error(t, s.WriteSolFile(&buf))
	assert.Equal(t, "", s.TraceLine("x", time.Second))
}
