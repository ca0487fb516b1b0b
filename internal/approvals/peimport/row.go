package peimport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"itou_backend/internal/approvals/domain"

	"github.com/xuri/excelize/v2"
)

// Column layout of the legacy export. The first row is a header.
const (
	colRegion = iota
	colStructureCode
	colPoleEmploiID
	colNumber
	colLastName
	colFirstName
	colBirthName
	colBirthdate
	colStartAt
	colEndAt

	columnCount
)

// Header is the expected first row.
var Header = []string{
	"ID_REGION_ORGA", "CODE_STRUCT_AGR", "ID_NATIONAL_BENE", "NUM_AGR_DEC",
	"NOM", "PRENOM", "NOM_NAISS", "DATE_NAISS_BENE", "DATE_DEB_AGR_DEC", "DATE_FIN_AGR_DEC",
}

const dateLayout = "02/01/06"

// ParseRow turns one spreadsheet row into a legacy approval. today is used
// to repair birthdates whose two-digit year landed in the future.
func ParseRow(cols []string, today time.Time) (domain.PoleEmploiApproval, error) {
	if len(cols) < columnCount {
		padded := make([]string, columnCount)
		copy(padded, cols)
		cols = padded
	}
	cell := func(i int) string { return strings.TrimSpace(cols[i]) }

	pe := domain.PoleEmploiApproval{
		PeStructureCode: cell(colStructureCode),
		PoleEmploiID:    cell(colPoleEmploiID),
		Number:          strings.ReplaceAll(cell(colNumber), " ", ""),
		LastName:        domain.FormatNameAsPoleEmploi(cell(colLastName)),
		FirstName:       domain.FormatNameAsPoleEmploi(cell(colFirstName)),
		BirthName:       domain.FormatNameAsPoleEmploi(cell(colBirthName)),
	}

	if len(pe.PeStructureCode) != 5 {
		return pe, fmt.Errorf("structure code %q must have 5 characters", pe.PeStructureCode)
	}
	if n := len(pe.PoleEmploiID); n != 8 && n != 11 {
		return pe, fmt.Errorf("pole emploi id %q must have 8 or 11 characters", pe.PoleEmploiID)
	}
	if n := len(pe.Number); n != domain.NumberLength && n != domain.PoleEmploiNumberLength {
		return pe, fmt.Errorf("number %q must have 12 or 15 characters", pe.Number)
	}
	if !isName(pe.LastName) {
		return pe, fmt.Errorf("invalid last name %q", pe.LastName)
	}
	if !isName(pe.FirstName) {
		return pe, fmt.Errorf("invalid first name %q", pe.FirstName)
	}
	if pe.BirthName != "" && !isName(pe.BirthName) {
		return pe, fmt.Errorf("invalid birth name %q", pe.BirthName)
	}

	var err error
	if pe.Birthdate, err = parseDate(cell(colBirthdate)); err != nil {
		return pe, fmt.Errorf("birthdate: %w", err)
	}
	if pe.Birthdate.After(today) {
		pe.Birthdate = pe.Birthdate.AddDate(-100, 0, 0)
	}
	if pe.StartAt, err = parseDate(cell(colStartAt)); err != nil {
		return pe, fmt.Errorf("start date: %w", err)
	}
	if pe.EndAt, err = parseDate(cell(colEndAt)); err != nil {
		return pe, fmt.Errorf("end date: %w", err)
	}
	if !pe.EndAt.After(pe.StartAt) {
		return pe, fmt.Errorf("end date %s must be after start date %s",
			pe.EndAt.Format(time.DateOnly), pe.StartAt.Format(time.DateOnly))
	}

	return pe, nil
}

// isName accepts letters, spaces, hyphens and apostrophes.
func isName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' && r != '\'' {
			return false
		}
	}
	return true
}

// parseDate reads dd/mm/yy text, or an Excel date serial when the cell was
// stored as a date.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("missing date")
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return domain.DateOf(t), nil
	}
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q", value)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q: %w", value, err)
	}
	return domain.DateOf(t), nil
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
