package rpe

import (
	"math"

	"github.com/p-blackswan/liftlog/internal/workout"
)

// Bucket labels a difficulty score.
type Bucket string

const (
	BucketEasy     Bucket = "easy"
	BucketModerate Bucket = "moderate"
	BucketHard     Bucket = "hard"
	BucketBrutal   Bucket = "brutal"
)

// Difficulty is a session score in 1..100.
type Difficulty struct {
	Score   int     `json:"score"`
	Bucket  Bucket  `json:"bucket"`
	AvgRPE  float64 `json:"avg_rpe"`
	MaxRPE  float64 `json:"max_rpe"`
	Sets    int     `json:"sets"`
	RPESets int     `json:"rpe_sets"`
}

// SessionDifficulty scores a list of sets. The RPE average and maximum come
// from rated sets only; volume counts every set:
//
//	min(100, max(1, round(avg*10 + max(0, max-8)*5) * sqrt(sets/10)))
func SessionDifficulty(sets []workout.LoggedSet) Difficulty {
	d := Difficulty{Sets: len(sets)}
	var sum float64
	for _, s := range sets {
		if s.RPE == nil {
			continue
		}
		sum += *s.RPE
		d.RPESets++
		d.MaxRPE = math.Max(d.MaxRPE, *s.RPE)
	}
	if d.RPESets > 0 {
		d.AvgRPE = sum / float64(d.RPESets)
	}

	base := math.Round(d.AvgRPE*10 + math.Max(0, d.MaxRPE-8)*5)
	score := base * math.Sqrt(float64(d.Sets)/10)
	d.Score = int(math.Round(math.Min(100, math.Max(1, score))))
	d.Bucket = BucketFor(d.Score)
	d.AvgRPE = round1(d.AvgRPE)
	return d
}

// ScoreSession scores every set of a session.
func ScoreSession(s workout.Session) Difficulty {
	var sets []workout.LoggedSet
	for _, ex := range s.Exercises {
		sets = append(sets, ex.Sets...)
	}
	return SessionDifficulty(sets)
}

// BucketFor maps a score to its label.
func BucketFor(score int) Bucket {
	switch {
	case score < 40:
		return BucketEasy
	case score < 60:
		return BucketModerate
	case score < 80:
		return BucketHard
	default:
		return BucketBrutal
	}
}
