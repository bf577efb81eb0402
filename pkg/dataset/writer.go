package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/panbanda/defectmine/pkg/ml"
)

// MethodHeader is the header of the method dataset CSV.
var MethodHeader = []string{
	"RELEASE", "CLASS", "SIGNATURE", "ACCESSOR",
	"LOC", "STATEMENTS", "CYCLOMATIC", "COGNITIVE", "NESTING_DEPTH", "PARAMETERS",
	"CHANGES", "AUTHORS", "ADDED", "REMOVED", "MAX_CHURN", "AGE",
	"FAN_IN", "FAN_OUT", "HALSTEAD_EFFORT", "COMMENT_DENSITY", "SMELLS", "BUG",
}

// ClassHeader is the header of the class training and testing CSVs.
var ClassHeader = append(append([]string{"RELEASE_ID", "FILE_NAME"}, ClassFeatures...), "IS_BUGGY")

// ResultHeader is the header of the classifier results CSV.
var ResultHeader = []string{
	"DATASET", "#TRAINING_RELEASES", "%TRAINING_INSTANCES",
	"CLASSIFIER", "FEATURE_SELECTION", "BALANCING", "COST_SENSITIVE",
	"PRECISION", "RECALL", "AREA_UNDER_ROC", "KAPPA",
	"TRUE_POSITIVES", "FALSE_POSITIVES", "TRUE_NEGATIVES", "FALSE_NEGATIVES",
}

// Label values of the class datasets.
const (
	Yes = "YES"
	No  = "NO"
)

func yesNo(b bool) string {
	if b {
		return Yes
	}
	return No
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func itoa32(v int32) string { return strconv.Itoa(int(v)) }

// Fields returns the CSV cells of the record in MethodHeader order.
func (r MethodRecord) Fields() []string {
	return []string{
		itoa32(r.Release), r.Class, r.Signature, r.Accessor,
		itoa32(r.LOC), itoa32(r.Statements), itoa32(r.Cyclomatic), itoa32(r.Cognitive),
		itoa32(r.NestingDepth), itoa32(r.Parameters),
		itoa32(r.Changes), itoa32(r.Authors), itoa32(r.Added), itoa32(r.Removed),
		itoa32(r.MaxChurn), itoa32(r.Age),
		itoa32(r.FanIn), itoa32(r.FanOut),
		formatFloat(r.HalsteadEffort), formatFloat(r.CommentDensity),
		itoa32(r.Smells), yesNo(r.Buggy),
	}
}

// Fields returns the CSV cells of the row in ClassHeader order.
func (r ClassRow) Fields() []string {
	out := make([]string, 0, len(ClassHeader))
	out = append(out, strconv.Itoa(r.Release), r.Path)
	for _, v := range r.Features() {
		out = append(out, formatFloat(v))
	}
	return append(out, yesNo(r.Buggy))
}

func writeCSV(w io.Writer, header []string, rows func(yield func([]string) error) error) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := rows(cw.Write); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteMethodCSV writes the method dataset.
func WriteMethodCSV(w io.Writer, records []MethodRecord) error {
	return writeCSV(w, MethodHeader, func(yield func([]string) error) error {
		for _, r := range records {
			if err := yield(r.Fields()); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteClassCSV writes a class training or testing set.
func WriteClassCSV(w io.Writer, rows []ClassRow) error {
	return writeCSV(w, ClassHeader, func(yield func([]string) error) error {
		for _, r := range rows {
			if err := yield(r.Fields()); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteResults writes the classifier results.
func WriteResults(w io.Writer, results []ml.Result) error {
	return writeCSV(w, ResultHeader, func(yield func([]string) error) error {
		for _, r := range results {
			if err := yield(r.Fields()); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteARFF writes rows in Weka's attribute-relation format. The release id
// and file name are dropped; the numeric attributes follow ClassFeatures.
func WriteARFF(w io.Writer, relation string, rows []ClassRow) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "@relation %s\n\n", relation)
	for _, f := range ClassFeatures {
		fmt.Fprintf(bw, "@attribute %s numeric\n", f)
	}
	fmt.Fprintf(bw, "@attribute IS_BUGGY {'%s', '%s'}\n\n@data\n", Yes, No)

	for _, r := range rows {
		for _, v := range r.Features() {
			bw.WriteString(formatFloat(v))
			bw.WriteByte(',')
		}
		bw.WriteString(yesNo(r.Buggy))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Layout resolves output paths for one project under Root.
type Layout struct {
	Root    string
	Project string
}

// Set kinds of a walk-forward step.
const (
	Training = "training"
	Testing  = "testing"
)

// MethodCSV is the method dataset path.
func (l Layout) MethodCSV() string {
	return filepath.Join(l.Root, "datasets", "method", l.Project+".csv")
}

// MethodParquet is the Parquet copy of the method dataset.
func (l Layout) MethodParquet() string {
	return filepath.Join(l.Root, "datasets", "method", l.Project+".parquet")
}

// ClassSet is the path of the kind set of iteration i in format ext.
func (l Layout) ClassSet(kind, ext string, i int) string {
	return filepath.Join(l.Root, "datasets", "classes", l.Project, ext, kind,
		fmt.Sprintf("%s_%d.%s", l.Project, i, ext))
}

// Results is the classifier results path.
func (l Layout) Results() string {
	return filepath.Join(l.Root, "results", l.Project, l.Project+"_report.csv")
}

// Summary is the path of a JSON summary such as "releases" or "tickets".
func (l Layout) Summary(name string) string {
	return filepath.Join(l.Root, "summaries", l.Project, name+".json")
}

// WriteFile creates path with its parent directories and hands it to write.
func WriteFile(path string, write func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

// WriteStep writes the CSV and ARFF training and testing sets of s.
func (l Layout) WriteStep(s Step) error {
	sets := []struct {
		kind string
		rows []ClassRow
	}{{Training, s.Training}, {Testing, s.Testing}}

	for _, set := range sets {
		rows := set.rows
		relation := fmt.Sprintf("%s_%d_%s", l.Project, s.Iteration, set.kind)
		if err := WriteFile(l.ClassSet(set.kind, "csv", s.Iteration), func(w io.Writer) error {
			return WriteClassCSV(w, rows)
		}); err != nil {
			return err
		}
		if err := WriteFile(l.ClassSet(set.kind, "arff", s.Iteration), func(w io.Writer) error {
			return WriteARFF(w, relation, rows)
		}); err != nil {
			return err
		}
	}
	return nil
}
