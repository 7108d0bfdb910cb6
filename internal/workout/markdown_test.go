package workout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession() Session {
	return Session{
		Date:   time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		Type:   "upper",
		Status: StatusInProgress,
		Exercises: []LoggedExercise{
			{
				Name: "Bench Press",
				Sets: []LoggedSet{
					{Reps: 5, Weight: 185, RPE: RPE(7.5)},
					{Reps: 5, Weight: 185, RPE: RPE(8)},
				},
				Notes: "paused first rep",
			},
			{
				Name: "Pull-up",
				Sets: []LoggedSet{{Reps: 10, Bodyweight: true}},
			},
		},
	}
}

func TestRenderParse(t *testing.T) {
	s := sampleSession()
	doc, err := Render(s)
	require.NoError(t, err)
	assert.Contains(t, doc, "## Bench Press")
	assert.Contains(t, doc, "- 185 x 5 @ 7.5")
	assert.Contains(t, doc, "- BW x 10")

	got, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestParse_HandWrittenLog(t *testing.T) {
	doc := `---
date: 2026-10-14
type: lower
---

# Lower day

Felt strong, knees fine.

## Squat
- 275 lb x 5 @ RPE 8
* 285x3
- 295 × 1 @9.5
Some rambling about depth.

## Nordic curl
- bodyweight x 6
`
	s, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "lower", s.Type)
	assert.Equal(t, StatusCompleted, s.Status)
	require.Len(t, s.Exercises, 2)

	squat := s.Exercises[0]
	require.Len(t, squat.Sets, 3)
	assert.Equal(t, 275.0, squat.Sets[0].Weight)
	assert.Equal(t, 8.0, *squat.Sets[0].RPE)
	assert.Nil(t, squat.Sets[1].RPE)
	assert.Equal(t, 3, squat.Sets[1].Reps)
	assert.Equal(t, 9.5, *squat.Sets[2].RPE)

	assert.True(t, s.Exercises[1].Sets[0].Bodyweight)
}

func TestParse_NoFrontMatter(t *testing.T) {
	s, err := Parse("## Deadlift\n- 405 x 1\n")
	require.NoError(t, err)
	assert.True(t, s.Date.IsZero())
	require.Len(t, s.Exercises, 1)
	assert.Equal(t, 405.0, s.Exercises[0].Sets[0].Weight)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("---\ndate: 2026-10-16\n")
	assert.Error(t, err)

	_, err = Parse("---\nstatus: paused\n---\n")
	assert.Error(t, err)

	_, err = Parse("---\nmood: great\n---\n")
	assert.Error(t, err)
}
