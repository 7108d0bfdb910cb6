package workout

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontMatterDelim = "---"

type frontMatter struct {
	Date   string `yaml:"date"`
	Type   string `yaml:"type"`
	Status Status `yaml:"status"`
}

var setLine = regexp.MustCompile(`^[-*]\s*(?i:(bw|bodyweight)|(\d+(?:\.\d+)?))\s*(?i:lbs?|kg)?\s*[xX×]\s*(\d+)(?:\s*@\s*(?i:rpe)?\s*(\d+(?:\.\d+)?))?`)

// Render writes a session as a markdown document with YAML front matter. The
// format is stable so Parse(Render(s)) yields s.
func Render(s Session) (string, error) {
	fm, err := yaml.Marshal(frontMatter{
		Date:   s.DateString(),
		Type:   s.Type,
		Status: s.Status,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString(frontMatterDelim + "\n")
	b.Write(fm)
	b.WriteString(frontMatterDelim + "\n\n")
	fmt.Fprintf(&b, "# Workout %s (%s)\n", s.DateString(), s.Type)

	for _, ex := range s.Exercises {
		fmt.Fprintf(&b, "\n## %s\n", ex.Name)
		for _, set := range ex.Sets {
			b.WriteString("- " + formatSet(set) + "\n")
		}
		if ex.Notes != "" {
			for _, line := range strings.Split(ex.Notes, "\n") {
				b.WriteString("> " + line + "\n")
			}
		}
	}
	return b.String(), nil
}

func formatSet(set LoggedSet) string {
	load := "BW"
	if !set.Bodyweight {
		load = formatNumber(set.Weight)
	}
	out := fmt.Sprintf("%s x %d", load, set.Reps)
	if set.RPE != nil {
		out += " @ " + formatNumber(*set.RPE)
	}
	return out
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Parse reads a workout log produced by Render or written by hand in the same
// shape. Lines that are neither headings, set lines nor notes are ignored so
// the coaching agent may add free prose.
func Parse(content string) (Session, error) {
	var s Session
	body, fm, err := splitFrontMatter(content)
	if err != nil {
		return s, err
	}
	if fm.Date != "" {
		d, err := ParseDate(fm.Date)
		if err != nil {
			return s, err
		}
		s.Date = d
	}
	s.Type = fm.Type
	s.Status = fm.Status
	if s.Status == "" {
		s.Status = StatusCompleted
	}
	if !s.Status.Valid() {
		return s, fmt.Errorf("unknown session status %q", fm.Status)
	}

	var current *LoggedExercise
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "## "):
			s.Exercises = append(s.Exercises, LoggedExercise{Name: strings.TrimSpace(line[3:])})
			current = &s.Exercises[len(s.Exercises)-1]
		case current == nil:
			continue
		case strings.HasPrefix(line, ">"):
			note := strings.TrimSpace(strings.TrimPrefix(line, ">"))
			if current.Notes != "" {
				current.Notes += "\n"
			}
			current.Notes += note
		default:
			set, ok, err := parseSet(line)
			if err != nil {
				return s, fmt.Errorf("%s: %w", current.Name, err)
			}
			if ok {
				current.Sets = append(current.Sets, set)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return s, fmt.Errorf("scanning workout log: %w", err)
	}
	return s, nil
}

func parseSet(line string) (LoggedSet, bool, error) {
	m := setLine.FindStringSubmatch(line)
	if m == nil {
		return LoggedSet{}, false, nil
	}
	var set LoggedSet
	if m[1] != "" {
		set.Bodyweight = true
	} else {
		w, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return set, false, fmt.Errorf("parsing weight %q: %w", m[2], err)
		}
		set.Weight = w
	}
	reps, err := strconv.Atoi(m[3])
	if err != nil {
		return set, false, fmt.Errorf("parsing reps %q: %w", m[3], err)
	}
	set.Reps = reps
	if m[4] != "" {
		rpe, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			return set, false, fmt.Errorf("parsing rpe %q: %w", m[4], err)
		}
		set.RPE = &rpe
	}
	return set, true, nil
}

func splitFrontMatter(content string) (string, frontMatter, error) {
	var fm frontMatter
	trimmed := strings.TrimLeft(content, "\ufeff\r\n ")
	if !strings.HasPrefix(trimmed, frontMatterDelim) {
		return content, fm, nil
	}
	rest := trimmed[len(frontMatterDelim):]
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return content, fm, fmt.Errorf("unterminated front matter")
	}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(rest[:end])))
	dec.KnownFields(true)
	if err := dec.Decode(&fm); err != nil && !errors.Is(err, io.EOF) {
		return content, fm, fmt.Errorf("decoding front matter: %w", err)
	}
	return rest[end+len(frontMatterDelim)+1:], fm, nil
}
