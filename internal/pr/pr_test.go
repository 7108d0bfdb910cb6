package pr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/liftlog/internal/workout"
)

func benchLedger(weight float64, reps int, est float64) Ledger {
	return Ledger{
		workout.BenchPress: {Current: &Record{Weight: weight, Reps: reps, Date: "2026-10-09", Estimated1RM: est}},
	}
}

func TestEvaluate_WeightPR(t *testing.T) {
	c := Evaluate("Bench Press", 180, 5, benchLedger(175, 5, 197))
	require.NotNil(t, c)
	assert.Equal(t, TypeWeight, c.Type)
	assert.Equal(t, workout.BenchPress, c.Exercise)
	assert.Equal(t, 210.0, c.Estimated1RM)
	assert.Contains(t, c.Message, "+5")
	assert.Equal(t, "Bench Press weight PR: 180 x 5 (+5 over 175)", c.Message)
	require.NotNil(t, c.Previous)
	assert.Equal(t, 175.0, c.Previous.Weight)
}

func TestEvaluate_Milestone(t *testing.T) {
	c := Evaluate("bench", 225, 3, benchLedger(220, 3, 242))
	require.NotNil(t, c)
	assert.Equal(t, TypeMilestone, c.Type)
	require.NotNil(t, c.Milestone)
	assert.Equal(t, "Two plate club", c.Milestone.Name)
	assert.Equal(t, "Two plate club! Bench Press 225 x 3 (+5 over 220)", c.Message)
}

func TestEvaluate_FirstRecordWithoutMilestones(t *testing.T) {
	c := Evaluate("Barbell Row", 150, 10, Ledger{})
	require.NotNil(t, c)
	assert.Equal(t, TypeWeight, c.Type)
	assert.Nil(t, c.Previous)
	assert.Nil(t, c.Milestone)
	assert.Equal(t, 200.0, c.Estimated1RM)
	assert.Equal(t, "First Barbell Row record: 150 x 10", c.Message)
}

func TestEvaluateSet_EstimatedPRFromRPE(t *testing.T) {
	ledger := benchLedger(170, 3, 186)
	set := workout.LoggedSet{Weight: 165, Reps: 8, RPE: workout.RPE(8)}

	c := EvaluateSet("Bench Press", set, "2026-10-16", ledger)
	require.NotNil(t, c)
	assert.Equal(t, TypeEstimated1RM, c.Type)
	assert.Equal(t, 220.0, c.Estimated1RM)
	assert.Equal(t, "2026-10-16", c.Date)
	assert.Equal(t, "Bench Press e1RM PR: 220 from 165 x 8 (+34 over 186)", c.Message)
}

func TestEvaluate_RepPR(t *testing.T) {
	c := Evaluate("bench_press", 175, 7, benchLedger(175, 5, 204))
	require.NotNil(t, c)
	assert.Equal(t, TypeReps, c.Type)
	assert.Equal(t, "Bench Press rep PR: 175 x 7 (+2 reps at 175)", c.Message)
}

func TestEvaluate_NoRecord(t *testing.T) {
	ledger := benchLedger(175, 5, 204)
	assert.Nil(t, Evaluate("bench", 170, 5, ledger))
	assert.Nil(t, Evaluate("bench", 175, 5, ledger))
	assert.Nil(t, Evaluate("bench", 175, 0, ledger))
	assert.Nil(t, Evaluate("bench", 0, 5, ledger))
	assert.Nil(t, Evaluate("", 200, 5, ledger))
	assert.Nil(t, EvaluateSet("pull-up", workout.LoggedSet{Bodyweight: true, Reps: 12}, "2026-10-16", ledger))
}

func TestEvaluate_AliasesShareRecords(t *testing.T) {
	ledger := Ledger{workout.OverheadPress: {Current: &Record{Weight: 135, Reps: 5, Estimated1RM: 158}}}
	assert.Nil(t, Evaluate("OHP", 130, 5, ledger))
	c := Evaluate("Press", 140, 5, ledger)
	require.NotNil(t, c)
	assert.Equal(t, workout.OverheadPress, c.Exercise)
}

func TestEvaluate_FirstCrossedMilestoneOnly(t *testing.T) {
	// 220 -> 320 crosses both 225 and 315; only the lower one is reported.
	ledger := benchLedger(220, 1, 220)
	c := Evaluate("bench", 320, 1, ledger)
	require.NotNil(t, c)
	require.NotNil(t, c.Milestone)
	assert.Equal(t, "Two plate club", c.Milestone.Name)

	// The skipped milestone is not celebrated later: the best already
	// exceeds it.
	ledger = Apply(ledger, c)
	next := Evaluate("bench", 330, 1, ledger)
	require.NotNil(t, next)
	assert.Equal(t, TypeWeight, next.Type)
	assert.Nil(t, next.Milestone)
}

func TestEvaluate_FirstEverLiftCrossingSeveralMilestones(t *testing.T) {
	c := Evaluate("bench", 250, 1, Ledger{})
	require.NotNil(t, c)
	assert.Equal(t, TypeMilestone, c.Type)
	assert.Equal(t, "One plate club", c.Milestone.Name)
	assert.Equal(t, "One plate club! Bench Press 250 x 1", c.Message)
}

func TestEvaluate_RecordedMilestoneNotRepeated(t *testing.T) {
	ledger := Ledger{workout.BenchPress: {
		Current:    &Record{Weight: 200, Reps: 5, Estimated1RM: 233},
		Milestones: []string{"One plate club", "Two plate club"},
	}}
	c := Evaluate("bench", 230, 1, ledger)
	require.NotNil(t, c)
	assert.Equal(t, TypeWeight, c.Type)
	assert.Nil(t, c.Milestone)
}

func TestEvaluate_DoesNotMutateLedger(t *testing.T) {
	ledger := benchLedger(175, 5, 204)
	before := ledger.Clone()

	first := Evaluate("bench", 180, 5, ledger)
	second := Evaluate("bench", 180, 5, ledger)

	assert.Equal(t, first, second)
	assert.Equal(t, before, ledger)
}

func TestApply(t *testing.T) {
	ledger := benchLedger(220, 3, 242)
	before := ledger.Clone()
	c := Evaluate("bench", 225, 3, ledger)
	require.NotNil(t, c)
	c.Date = "2026-10-16"

	next := Apply(ledger, c)

	assert.Equal(t, before, ledger)
	entry := next[workout.BenchPress]
	require.NotNil(t, entry.Current)
	assert.Equal(t, Record{Weight: 225, Reps: 3, Date: "2026-10-16", Estimated1RM: 248}, *entry.Current)
	require.Len(t, entry.History, 1)
	assert.Equal(t, 220.0, entry.History[0].Weight)
	assert.Equal(t, []string{"Two plate club"}, entry.Milestones)

	assert.Nil(t, Evaluate("bench", 225, 3, next))
	assert.Equal(t, next, Apply(next, nil))
}

func TestMilestones_Monotonic(t *testing.T) {
	ledger := Ledger{}
	var celebrated []string
	for w := 100.0; w <= 500; w += 5 {
		c := Evaluate("bench", w, 1, ledger)
		require.NotNil(t, c, "weight %v", w)
		if c.Milestone != nil {
			celebrated = append(celebrated, c.Milestone.Name)
		}
		ledger = Apply(ledger, c)
	}
	assert.Equal(t, []string{"One plate club", "Two plate club", "Three plate club", "Four plate club"}, celebrated)
	assert.Equal(t, celebrated, ledger[workout.BenchPress].Milestones)

	for w := 100.0; w <= 500; w += 5 {
		assert.Nil(t, Evaluate("bench", w, 1, ledger))
	}
}

func TestMilestones_ReturnsCopy(t *testing.T) {
	m := Milestones("bench")
	require.NotEmpty(t, m)
	m[0].Name = "changed"
	assert.Equal(t, "One plate club", Milestones("bench press")[0].Name)
	assert.Nil(t, Milestones("barbell_row"))
}

func TestSeverity(t *testing.T) {
	assert.Greater(t, TypeMilestone.Severity(), TypeWeight.Severity())
	assert.Greater(t, TypeWeight.Severity(), TypeReps.Severity())
	assert.Greater(t, TypeReps.Severity(), TypeEstimated1RM.Severity())
	assert.Zero(t, Type("other").Severity())
}

func TestEvaluateSession(t *testing.T) {
	ledger := benchLedger(175, 5, 204)
	exercises := []workout.LoggedExercise{
		{Name: "Bench Press", Sets: []workout.LoggedSet{
			{Weight: 175, Reps: 5},
			{Weight: 180, Reps: 5},
			{Weight: 185, Reps: 3},
		}},
		{Name: "Pull-up", Sets: []workout.LoggedSet{{Bodyweight: true, Reps: 10}}},
		{Name: "Barbell Row", Sets: []workout.LoggedSet{{Weight: 135, Reps: 8}}},
	}

	celebrations, next := EvaluateSession(exercises, "2026-10-16", ledger)

	require.Len(t, celebrations, 2)
	assert.Equal(t, workout.BenchPress, celebrations[0].Exercise)
	assert.Equal(t, 185.0, celebrations[0].Weight)
	assert.Equal(t, TypeWeight, celebrations[0].Type)
	assert.Equal(t, 180.0, celebrations[0].Previous.Weight)
	assert.Equal(t, workout.BarbellRow, celebrations[1].Exercise)

	bench := next[workout.BenchPress]
	assert.Equal(t, 185.0, bench.Current.Weight)
	assert.Equal(t, "2026-10-16", bench.Current.Date)
	require.Len(t, bench.History, 2)
	assert.Equal(t, 175.0, bench.History[0].Weight)
	assert.Equal(t, 180.0, bench.History[1].Weight)
	assert.Equal(t, 175.0, ledger[workout.BenchPress].Current.Weight)
}

func TestEvaluateSession_PrefersMostSevere(t *testing.T) {
	ledger := benchLedger(220, 3, 242)
	exercises := []workout.LoggedExercise{{Name: "bench", Sets: []workout.LoggedSet{
		{Weight: 225, Reps: 2},
		{Weight: 225, Reps: 3},
	}}}

	celebrations, _ := EvaluateSession(exercises, "2026-10-16", ledger)
	require.Len(t, celebrations, 1)
	assert.Equal(t, TypeMilestone, celebrations[0].Type)
	assert.Equal(t, 2, celebrations[0].Reps)
}
