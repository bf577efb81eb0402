package dataset

import (
	"fmt"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/panbanda/defectmine/pkg/models"
)

// MethodRecord is one row of the method dataset.
type MethodRecord struct {
	Release        int32   `parquet:"release,snappy"`
	Class          string  `parquet:"class,snappy,dict"`
	Signature      string  `parquet:"signature,snappy"`
	Accessor       string  `parquet:"accessor,snappy,dict"`
	LOC            int32   `parquet:"loc,snappy"`
	Statements     int32   `parquet:"statements,snappy"`
	Cyclomatic     int32   `parquet:"cyclomatic,snappy"`
	Cognitive      int32   `parquet:"cognitive,snappy"`
	NestingDepth   int32   `parquet:"nesting_depth,snappy"`
	Parameters     int32   `parquet:"parameters,snappy"`
	Changes        int32   `parquet:"changes,snappy"`
	Authors        int32   `parquet:"authors,snappy"`
	Added          int32   `parquet:"added,snappy"`
	Removed        int32   `parquet:"removed,snappy"`
	MaxChurn       int32   `parquet:"max_churn,snappy"`
	Age            int32   `parquet:"age,snappy"`
	FanIn          int32   `parquet:"fan_in,snappy"`
	FanOut         int32   `parquet:"fan_out,snappy"`
	HalsteadEffort float64 `parquet:"halstead_effort,snappy"`
	CommentDensity float64 `parquet:"comment_density,snappy"`
	Smells         int32   `parquet:"smells,snappy"`
	Buggy          bool    `parquet:"buggy,snappy"`
}

// MethodRecords flattens every method of every release, ordered by release,
// class path, declaration line and signature.
func MethodRecords(byRelease map[int][]*models.Class) []MethodRecord {
	ids := make([]int, 0, len(byRelease))
	for id := range byRelease {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []MethodRecord
	for _, id := range ids {
		classes := append([]*models.Class(nil), byRelease[id]...)
		sort.Slice(classes, func(i, j int) bool { return classes[i].Path < classes[j].Path })

		for _, c := range classes {
			methods := make([]*models.Method, 0, len(c.Methods))
			for _, m := range c.Methods {
				methods = append(methods, m)
			}
			sort.Slice(methods, func(i, j int) bool {
				if methods[i].Begin != methods[j].Begin {
					return methods[i].Begin < methods[j].Begin
				}
				return methods[i].Signature < methods[j].Signature
			})
			for _, m := range methods {
				out = append(out, newMethodRecord(id, c.Path, m))
			}
		}
	}
	return out
}

func newMethodRecord(release int, path string, m *models.Method) MethodRecord {
	mm := m.Metrics
	accessor := mm.Accessor
	if accessor == "" {
		accessor = models.AccessPackagePrivate
	}
	return MethodRecord{
		Release:        int32(release),
		Class:          path,
		Signature:      m.Signature,
		Accessor:       accessor,
		LOC:            int32(mm.LOC),
		Statements:     int32(mm.Statements),
		Cyclomatic:     int32(mm.Cyclomatic),
		Cognitive:      int32(mm.Cognitive),
		NestingDepth:   int32(mm.NestingDepth),
		Parameters:     int32(mm.Parameters),
		Changes:        int32(mm.Changes),
		Authors:        int32(mm.Authors.Len()),
		Added:          int32(mm.Added),
		Removed:        int32(mm.Removed),
		MaxChurn:       int32(mm.MaxChurn),
		Age:            int32(mm.Age),
		FanIn:          int32(mm.FanIn),
		FanOut:         int32(mm.FanOut),
		HalsteadEffort: mm.HalsteadEffort,
		CommentDensity: mm.CommentDensity,
		Smells:         int32(mm.Smells),
		Buggy:          mm.Buggy,
	}
}

// WriteMethodsParquet writes records to a Parquet file at path.
func WriteMethodsParquet(records []MethodRecord, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[MethodRecord](file)
	if _, err := writer.Write(records); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return file.Close()
}
