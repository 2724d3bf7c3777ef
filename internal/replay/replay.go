// Package replay runs recorded joint-angle series through a rep tracker
// without a camera or pose model.
package replay

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/claude/reptrack/internal/models"
	"github.com/claude/reptrack/internal/session"
	"github.com/claude/reptrack/internal/tracker"
)

// PrimaryColumn is the header name of the angle column in multi-column files.
const PrimaryColumn = "primary"

// Parse reads one angle reading per line. Fields may be separated by commas
// or semicolons; a header row selects the "primary" column, otherwise the
// first column is used. Empty values and "-" are frames where the angle
// could not be measured. Lines starting with # are skipped.
func Parse(r io.Reader) ([]*float64, error) {
	scanner := bufio.NewScanner(r)
	var (
		readings []*float64
		column   int
		seenData bool
		lineNo   int
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := splitFields(line)

		if !seenData && isHeader(fields) {
			for i, f := range fields {
				if strings.EqualFold(f, PrimaryColumn) {
					column = i
				}
			}
			seenData = true
			continue
		}
		seenData = true

		value := ""
		if column < len(fields) {
			value = fields[column]
		}
		if value == "" || value == "-" {
			readings = append(readings, nil)
			continue
		}
		angle, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing angle %q: %w", lineNo, value, err)
		}
		if math.IsNaN(angle) || math.IsInf(angle, 0) {
			return nil, fmt.Errorf("line %d: angle %q is not finite", lineNo, value)
		}
		readings = append(readings, &angle)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading angles: %w", err)
	}
	return readings, nil
}

func splitFields(line string) []string {
	if line == "" {
		return nil
	}
	fields := strings.Split(strings.ReplaceAll(line, ";", ","), ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func isHeader(fields []string) bool {
	for _, f := range fields {
		if f == "" || f == "-" {
			continue
		}
		if _, err := strconv.ParseFloat(f, 64); err == nil {
			return false
		}
		return true
	}
	return false
}

// Result summarizes one replay.
type Result struct {
	Exercise     string             `json:"exercise"`
	Frames       int                `json:"frames"`
	TotalReps    int                `json:"total_reps"`
	AvgFormScore *float64           `json:"avg_form_score"`
	Reps         []models.RepResult `json:"reps"`
	Final        tracker.State      `json:"final_state"`
}

// Run feeds readings to a fresh tracker for exercise. onUpdate, when not
// nil, sees every per-frame update.
func Run(registry *tracker.Registry, exercise string, readings []*float64, onUpdate func(frame int, u tracker.Update)) (Result, error) {
	tr, err := registry.Create(exercise)
	if err != nil {
		return Result{}, err
	}
	s := session.New(exercise, "", tr, time.Now())

	for _, angle := range readings {
		s.FrameCount++
		u := tr.Update(angle)
		s.Record(u)
		if onUpdate != nil {
			onUpdate(s.FrameCount, u)
		}
	}

	reps := s.Reps
	if reps == nil {
		reps = []models.RepResult{}
	}
	return Result{
		Exercise:     exercise,
		Frames:       s.FrameCount,
		TotalReps:    tr.RepCount(),
		AvgFormScore: tr.AvgFormScore(),
		Reps:         reps,
		Final:        tr.State(),
	}, nil
}
