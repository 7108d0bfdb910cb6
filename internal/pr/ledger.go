package pr

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/liftlog/internal/e1rm"
	"github.com/p-blackswan/liftlog/internal/workout"
)

// ParseLedger decodes prs.yaml. Unknown fields, negative values and bad dates
// are rejected. Exercise names are canonicalized; two spellings of the same
// lift are an error. Records without an estimated_1rm get one computed.
func ParseLedger(data []byte) (Ledger, error) {
	raw := make(map[string]ExercisePR)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding prs.yaml: %w", err)
	}

	out := make(Ledger, len(raw))
	for name, entry := range raw {
		key := workout.CanonicalExercise(name)
		if key == "" {
			return nil, fmt.Errorf("prs.yaml: empty exercise name")
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("prs.yaml: exercise %q listed twice", key)
		}
		if entry.Current != nil {
			if err := validateRecord(key, entry.Current); err != nil {
				return nil, err
			}
		}
		for i := range entry.History {
			if err := validateRecord(key, &entry.History[i]); err != nil {
				return nil, err
			}
		}
		out[key] = entry
	}
	return out, nil
}

func validateRecord(key string, r *Record) error {
	if r.Weight < 0 || r.Reps < 0 || r.Estimated1RM < 0 {
		return fmt.Errorf("prs.yaml: %s: negative value in record", key)
	}
	if r.Date != "" {
		if _, err := workout.ParseDate(r.Date); err != nil {
			return fmt.Errorf("prs.yaml: %s: %w", key, err)
		}
	}
	if r.Estimated1RM == 0 {
		r.Estimated1RM = e1rm.Estimate(r.Weight, r.Reps)
	}
	return nil
}

// MarshalLedger encodes the ledger as prs.yaml. Exercises come out sorted by
// key.
func MarshalLedger(l Ledger) ([]byte, error) {
	if l == nil {
		l = Ledger{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(l); err != nil {
		return nil, fmt.Errorf("encoding prs.yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
