package model

import (
	"strconv"
	"strings"
	"time"
)

// PatientFields are the scalar fields of a patient record. All of them are
// comparable, which the form relies on to detect edits.
type PatientFields struct {
	OPNo          string `db:"op_no" json:"opNo" validate:"required"`
	RegNo         string `db:"reg_no" json:"regNo" validate:"required"`
	Name          string `db:"name" json:"name" validate:"required"`
	Sex           string `db:"sex" json:"sex"`
	MaritalStatus string `db:"marital_status" json:"maritalStatus"`
	SpouseName    string `db:"spouse_name" json:"spouseName"`
	DOB           string `db:"dob" json:"dob"`
	Address       string `db:"address" json:"address"`
	Vitals
	Consultant   string `db:"consultant" json:"consultant"`
	Allergy      string `db:"allergy" json:"allergy"`
	Email        string `db:"email" json:"email"`
	OperatorName string `db:"operator_name" json:"operatorName"`
	RefDoctor    string `db:"ref_doctor" json:"refDoctor"`
	BloodGroup   string `db:"blood_group" json:"bloodGroup"`
	Date         string `db:"entry_date" json:"date"`
	Time         string `db:"entry_time" json:"time"`
}

type Patient struct {
	Base
	PatientFields
	// Files holds persisted upload URLs in display order.
	Files []string `db:"-" json:"files"`
}

// AgeOn derives the patient's age in whole years at now.
func (p *Patient) AgeOn(now time.Time) string {
	return AgeOn(p.DOB, now)
}

// AgeOn returns whole years between dob (YYYY-MM-DD) and now, one less when
// now's month/day precedes the birthday. Empty for unparseable or future dates.
func AgeOn(dob string, now time.Time) string {
	if dob == "" {
		return ""
	}
	d, err := time.Parse(DateLayout, dob)
	if err != nil {
		return ""
	}

	years := now.Year() - d.Year()
	if now.Month() < d.Month() || (now.Month() == d.Month() && now.Day() < d.Day()) {
		years--
	}
	if years < 0 {
		return ""
	}
	return strconv.Itoa(years)
}

// NextNumber returns one past the largest integer among values, ignoring
// anything that does not parse. It is 1 when nothing parses.
func NextNumber(values []string) string {
	max := 0
	for _, v := range values {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}

// PatientInput is a partial update; nil fields are left alone.
type PatientInput struct {
	OPNo          *string `json:"opNo"`
	RegNo         *string `json:"regNo"`
	Name          *string `json:"name"`
	Sex           *string `json:"sex"`
	MaritalStatus *string `json:"maritalStatus"`
	SpouseName    *string `json:"spouseName"`
	DOB           *string `json:"dob"`
	Address       *string `json:"address"`
	Temperature   *string `json:"temp"`
	Pulse         *string `json:"pr"`
	BP            *string `json:"bp"`
	SpO2          *string `json:"spo2"`
	Consultant    *string `json:"consultant"`
	Allergy       *string `json:"allergy"`
	Email         *string `json:"email"`
	OperatorName  *string `json:"operatorName"`
	RefDoctor     *string `json:"refDoctor"`
	BloodGroup    *string `json:"bloodGroup"`
	Date          *string `json:"date"`
	Time          *string `json:"time"`
}

// Apply copies every set field except the OP and registration numbers.
func (in PatientInput) Apply(f *PatientFields) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&f.Name, in.Name)
	set(&f.Sex, in.Sex)
	set(&f.MaritalStatus, in.MaritalStatus)
	set(&f.SpouseName, in.SpouseName)
	set(&f.DOB, in.DOB)
	set(&f.Address, in.Address)
	set(&f.Temperature, in.Temperature)
	set(&f.Pulse, in.Pulse)
	set(&f.BP, in.BP)
	set(&f.SpO2, in.SpO2)
	set(&f.Consultant, in.Consultant)
	set(&f.Allergy, in.Allergy)
	set(&f.Email, in.Email)
	set(&f.OperatorName, in.OperatorName)
	set(&f.RefDoctor, in.RefDoctor)
	set(&f.BloodGroup, in.BloodGroup)
	set(&f.Date, in.Date)
	set(&f.Time, in.Time)
}

// PatientRow is one line of the patient selection list.
type PatientRow struct {
	ID         string `json:"id"`
	OPNo       string `json:"opNo"`
	RegNo      string `json:"regNo"`
	Name       string `json:"name"`
	Sex        string `json:"sex"`
	Age        string `json:"age"`
	Consultant string `json:"consultant"`
	Date       string `json:"date"`
	Time       string `json:"time"`
}
