package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/panbanda/defectmine/pkg/models"
)

// ErrClassHeader is returned when a class CSV does not start with ClassHeader.
var ErrClassHeader = errors.New("unexpected class dataset header")

// ReadClassCSV parses a file written by WriteClassCSV.
func ReadClassCSV(r io.Reader) ([]ClassRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(ClassHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(header, ClassHeader) {
		return nil, ErrClassHeader
	}

	var rows []ClassRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row, err := parseClassRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}

func parseClassRow(rec []string) (ClassRow, error) {
	release, err := strconv.Atoi(rec[0])
	if err != nil {
		return ClassRow{}, fmt.Errorf("release id: %w", err)
	}

	vals := make([]float64, len(ClassFeatures))
	for i := range vals {
		v, err := strconv.ParseFloat(rec[2+i], 64)
		if err != nil {
			return ClassRow{}, fmt.Errorf("%s: %w", ClassFeatures[i], err)
		}
		vals[i] = v
	}

	var buggy bool
	switch label := rec[len(rec)-1]; label {
	case Yes:
		buggy = true
	case No:
	default:
		return ClassRow{}, fmt.Errorf("label %q is neither %s nor %s", label, Yes, No)
	}

	agg := func(i int) models.Aggregate {
		return models.Aggregate{Val: int(vals[i]), Avg: vals[i+1], Max: int(vals[i+2])}
	}
	return ClassRow{
		Release: release,
		Path:    rec[1],
		Buggy:   buggy,
		Metrics: models.ClassMetrics{
			Size:        int(vals[0]),
			LOCAdded:    agg(1),
			LOCRemoved:  agg(4),
			LOCTouched:  agg(7),
			Churn:       agg(10),
			Revisions:   int(vals[13]),
			DefectFixes: int(vals[14]),
			Authors:     int(vals[15]),
		},
	}, nil
}

func readClassFile(path string) ([]ClassRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := ReadClassCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// LoadSteps reads back the CSV sets of iterations 1, 2, ... until the first
// missing training file.
func (l Layout) LoadSteps() ([]Step, error) {
	var steps []Step
	for i := 1; ; i++ {
		train, err := readClassFile(l.ClassSet(Training, "csv", i))
		if errors.Is(err, os.ErrNotExist) {
			return steps, nil
		}
		if err != nil {
			return nil, err
		}
		test, err := readClassFile(l.ClassSet(Testing, "csv", i))
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Iteration: i, Training: train, Testing: test})
	}
}
