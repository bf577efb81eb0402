package models

// CodeSmellFinding is one row of a static-analysis CSV report.
type CodeSmellFinding struct {
	Problem     int    `json:"problem"`
	Package     string `json:"package"`
	File        string `json:"file"`
	Priority    int    `json:"priority"`
	Line        int    `json:"line"`
	Description string `json:"description"`
	RuleSet     string `json:"rule_set"`
	Rule        string `json:"rule"`
	Release     int    `json:"release"` // release whose end-state was analyzed
}
