package usecase

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	UnknownProcedure = "Unknown Procedure"
	maxProcedureLen  = 200
)

var procedurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:OPERATIVE\s+)?PROCEDURE(?:\s+PERFORMED)?[:\s]+([^\n]+)`),
	regexp.MustCompile(`(?i)OPERATION(?:\s+PERFORMED)?[:\s]+([^\n]+)`),
	regexp.MustCompile(`(?i)SURGERY[:\s]+([^\n]+)`),
	regexp.MustCompile(`(?i)POSTOPERATIVE\s+DIAGNOSIS[:\s]+([^\n]+)`),
}

// Checked in order; the first keyword hit wins.
var specialtyKeywords = []struct {
	name     string
	keywords []string
}{
	{"Gastroenterology", []string{"gastro", "endoscopy", "colonoscopy", "egd", "ercp"}},
	{"Orthopedic Surgery", []string{"orthopedic", "arthroplasty", "fracture", "joint"}},
	{"Cardiothoracic Surgery", []string{"cardiothoracic", "cabg", "cardiac", "thoracotomy"}},
	{"Neurosurgery", []string{"neurosurg", "craniotomy", "laminectomy", "spine"}},
	{"Urology", []string{"urolog", "cystoscopy", "prostatectomy", "nephrectomy"}},
	{"Gynecology", []string{"gynecolog", "hysterectomy", "oophorectomy"}},
	{"General Surgery", []string{"appendectomy", "cholecystectomy", "hernia", "laparoscopic"}},
}

// ExtractProcedureType finds the procedure named in a report header such as
// "PROCEDURE:", "OPERATION PERFORMED:" or "POSTOPERATIVE DIAGNOSIS:".
func ExtractProcedureType(text string) string {
	for _, re := range procedurePatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		procedure := strings.Trim(m[1], ", \t\r\n\f\v")
		if utf8.RuneCountInString(procedure) > maxProcedureLen {
			procedure = string([]rune(procedure)[:maxProcedureLen]) + "..."
		}
		switch strings.ToLower(procedure) {
		case "", "none", "n/a":
			continue
		}
		return procedure
	}
	return UnknownProcedure
}

// ExtractSpecialty guesses the specialty from keywords, falling back to def.
func ExtractSpecialty(text, def string) string {
	lower := strings.ToLower(text)
	for _, s := range specialtyKeywords {
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				return s.name
			}
		}
	}
	return def
}
