package ml

import "fmt"

// Dataset is a dense feature matrix with a binary buggy label per row.
type Dataset struct {
	Name     string
	Features []string
	X        [][]float64
	Y        []bool
}

// NewDataset creates an empty dataset with the given feature names.
func NewDataset(name string, features []string) *Dataset {
	return &Dataset{Name: name, Features: features}
}

// Add appends a row. It panics when the row width does not match the
// feature count.
func (d *Dataset) Add(x []float64, buggy bool) {
	if len(x) != len(d.Features) {
		panic(fmt.Sprintf("ml: row has %d values, dataset has %d features", len(x), len(d.Features)))
	}
	d.X = append(d.X, x)
	d.Y = append(d.Y, buggy)
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Y) }

// Counts returns the number of buggy and clean rows.
func (d *Dataset) Counts() (buggy, clean int) {
	for _, y := range d.Y {
		if y {
			buggy++
		} else {
			clean++
		}
	}
	return buggy, clean
}

// Column returns a copy of feature j over all rows.
func (d *Dataset) Column(j int) []float64 {
	col := make([]float64, len(d.X))
	for i, row := range d.X {
		col[i] = row[j]
	}
	return col
}

// Labels returns the label column as 1 for buggy and 0 for clean.
func (d *Dataset) Labels() []float64 {
	out := make([]float64, len(d.Y))
	for i, y := range d.Y {
		if y {
			out[i] = 1
		}
	}
	return out
}

// Project returns a dataset restricted to the given feature columns. Rows
// are copied.
func (d *Dataset) Project(cols []int) *Dataset {
	out := &Dataset{Name: d.Name, Features: make([]string, len(cols))}
	for k, j := range cols {
		out.Features[k] = d.Features[j]
	}
	out.X = make([][]float64, len(d.X))
	for i, row := range d.X {
		out.X[i] = projectRow(row, cols)
	}
	out.Y = append([]bool(nil), d.Y...)
	return out
}

func projectRow(row []float64, cols []int) []float64 {
	out := make([]float64, len(cols))
	for k, j := range cols {
		out[k] = row[j]
	}
	return out
}

// indices returns the row indices per label.
func (d *Dataset) indices() (buggy, clean []int) {
	for i, y := range d.Y {
		if y {
			buggy = append(buggy, i)
		} else {
			clean = append(clean, i)
		}
	}
	return buggy, clean
}

// subset returns the rows at idx, sharing row slices with d.
func (d *Dataset) subset(idx []int) *Dataset {
	out := &Dataset{Name: d.Name, Features: d.Features, X: make([][]float64, len(idx)), Y: make([]bool, len(idx))}
	for k, i := range idx {
		out.X[k] = d.X[i]
		out.Y[k] = d.Y[i]
	}
	return out
}
