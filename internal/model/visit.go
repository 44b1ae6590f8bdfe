package model

import "strings"

// VisitFields mirror one outpatient visit as entered at the desk. Patient
// name, sex, age and referring doctor are copies taken at visit time.
type VisitFields struct {
	OPNo               string `db:"op_no" json:"opNo"`
	Date               string `db:"visit_date" json:"date"`
	Time               string `db:"visit_time" json:"time"`
	PatientName        string `db:"patient_name" json:"patientName"`
	Sex                string `db:"sex" json:"sex"`
	Age                string `db:"age" json:"age"`
	RefDoctor          string `db:"ref_doctor" json:"refDoctor"`
	HistoryExamination string `db:"history_examination" json:"historyExamination"`
	Investigation      string `db:"investigation" json:"investigation"`
	Vitals
	Diagnosis  string `db:"diagnosis" json:"diagnosis"`
	ReviewDate string `db:"review_date" json:"reviewDate"`
}

type Visit struct {
	Base
	VisitFields
}

// HasClinicalContent reports whether any of history, investigation or
// diagnosis is filled in.
func (f VisitFields) HasClinicalContent() bool {
	return strings.TrimSpace(f.HistoryExamination) != "" ||
		strings.TrimSpace(f.Investigation) != "" ||
		strings.TrimSpace(f.Diagnosis) != ""
}

// ClearVisitSpecific empties the fields that belong to a single visit.
func (f *VisitFields) ClearVisitSpecific() {
	f.HistoryExamination = ""
	f.Investigation = ""
	f.Diagnosis = ""
	f.ReviewDate = ""
}

// VisitInput is a partial update of the editable visit fields.
type VisitInput struct {
	Date               *string `json:"date"`
	Time               *string `json:"time"`
	HistoryExamination *string `json:"historyExamination"`
	Investigation      *string `json:"investigation"`
	Temperature        *string `json:"temp"`
	Pulse              *string `json:"pr"`
	BP                 *string `json:"bp"`
	SpO2               *string `json:"spo2"`
	Diagnosis          *string `json:"diagnosis"`
	ReviewDate         *string `json:"reviewDate"`
}

func (in VisitInput) Apply(f *VisitFields) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&f.Date, in.Date)
	set(&f.Time, in.Time)
	set(&f.HistoryExamination, in.HistoryExamination)
	set(&f.Investigation, in.Investigation)
	set(&f.Temperature, in.Temperature)
	set(&f.Pulse, in.Pulse)
	set(&f.BP, in.BP)
	set(&f.SpO2, in.SpO2)
	set(&f.Diagnosis, in.Diagnosis)
	set(&f.ReviewDate, in.ReviewDate)
}

// HistoryRow is one line of the visit history selection list.
type HistoryRow struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Diagnosis string `json:"diagnosis"`
}

// PrintDocument is the read-only view of a visit handed to the print template.
type PrintDocument struct {
	VisitFields
	Files []PrintLink
}

type PrintLink struct {
	Label string
	URL   string
}
