// Package smells reads static-analysis CSV reports and credits each finding
// to the methods whose line range contains it.
package smells

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/panbanda/defectmine/pkg/models"
)

// Header is the exact first line of a report. Column positions below depend
// on it, so any deviation is rejected.
const Header = `"Problem","Package","File","Priority","Line","Description","Rule set","Rule"`

const columns = 8

// ErrHeaderMismatch is returned when a report does not start with Header.
var ErrHeaderMismatch = errors.New("unexpected code smell report header")

// Parse reads a CSV report. release is the id of the release whose end state
// was analyzed and is stamped on every finding.
func Parse(r io.Reader, release int) ([]models.CodeSmellFinding, error) {
	br := bufio.NewReader(r)
	first, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if got := strings.TrimRight(first, "\r\n"); got != Header {
		return nil, fmt.Errorf("%w: %q", ErrHeaderMismatch, got)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = columns
	cr.LazyQuotes = true

	var findings []models.CodeSmellFinding
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		f, err := parseRecord(rec, release)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func parseRecord(rec []string, release int) (models.CodeSmellFinding, error) {
	problem, err := strconv.Atoi(rec[0])
	if err != nil {
		return models.CodeSmellFinding{}, fmt.Errorf("problem %q: %w", rec[0], err)
	}
	priority, err := strconv.Atoi(rec[3])
	if err != nil {
		return models.CodeSmellFinding{}, fmt.Errorf("priority %q: %w", rec[3], err)
	}
	line, err := strconv.Atoi(rec[4])
	if err != nil {
		return models.CodeSmellFinding{}, fmt.Errorf("line %q: %w", rec[4], err)
	}
	return models.CodeSmellFinding{
		Problem:     problem,
		Package:     rec[1],
		File:        rec[2],
		Priority:    priority,
		Line:        line,
		Description: rec[5],
		RuleSet:     rec[6],
		Rule:        rec[7],
		Release:     release,
	}, nil
}

// ReportPath returns the report file for a release id inside dir.
func ReportPath(dir string, release int) string {
	return filepath.Join(dir, strconv.Itoa(release)+".csv")
}

// LoadReports reads the reports 0..lastRelease found in dir. Missing reports
// are skipped; a malformed one fails the load.
func LoadReports(dir string, lastRelease int) (map[int][]models.CodeSmellFinding, error) {
	reports := make(map[int][]models.CodeSmellFinding)
	for id := 0; id <= lastRelease; id++ {
		f, err := os.Open(ReportPath(dir, id))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		findings, err := Parse(f, id)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", id, err)
		}
		reports[id] = findings
	}
	return reports, nil
}

// Correlate resets smell counters and then applies every report: findings of
// report N (state at the end of release N) are matched against the classes
// of release N+1 by file suffix, and each finding increments every method of
// a matching class whose [Begin, End] contains its line.
func Correlate(byRelease map[int][]*models.Class, reports map[int][]models.CodeSmellFinding) {
	for _, classes := range byRelease {
		for _, cls := range classes {
			for _, m := range cls.Methods {
				m.Metrics.Smells = 0
			}
		}
	}

	for reportID, findings := range reports {
		classes := byRelease[reportID+1]
		for _, f := range findings {
			Apply(classes, f)
		}
	}
}

// Apply credits a single finding to the matching methods of classes.
func Apply(classes []*models.Class, f models.CodeSmellFinding) int {
	file := filepath.ToSlash(f.File)
	credited := 0
	for _, cls := range classes {
		if cls.Path == "" || !strings.HasSuffix(file, cls.Path) {
			continue
		}
		for _, m := range cls.Methods {
			if f.Line >= m.Begin && f.Line <= m.End {
				m.Metrics.Smells++
				credited++
			}
		}
	}
	return credited
}
