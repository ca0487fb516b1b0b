package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PoleEmploiNumberLength is the length of a legacy number carrying a suffix.
const PoleEmploiNumberLength = 15

// PoleEmploiApproval is an approval imported from the legacy Pôle emploi system.
type PoleEmploiApproval struct {
	ID              uuid.UUID
	PeStructureCode string
	PoleEmploiID    string
	Number          string
	FirstName       string
	LastName        string
	BirthName       string
	Birthdate       time.Time
	StartAt         time.Time
	EndAt           time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OriginalPoleEmploiApproval is the first imported version of a Pôle emploi
// approval. It is never updated by later imports.
type OriginalPoleEmploiApproval PoleEmploiApproval

// NumberWithSpaces formats the legacy number for display.
func (p *PoleEmploiApproval) NumberWithSpaces() string {
	return NumberWithSpaces(p.Number)
}

// ApprovalNumber is the native number a conversion produces: the first 12 characters.
func (p *PoleEmploiApproval) ApprovalNumber() string {
	if len(p.Number) > NumberLength {
		return p.Number[:NumberLength]
	}
	return p.Number
}

// IsValid reports whether the legacy approval has not expired.
func (p *PoleEmploiApproval) IsValid(today time.Time) bool {
	return !p.EndAt.Before(today)
}

// State classifies the legacy approval; it never carries suspensions.
func (p *PoleEmploiApproval) State(today time.Time) State {
	switch {
	case p.StartAt.After(today):
		return StateFuture
	case p.EndAt.Before(today):
		return StateExpired
	default:
		return StateValid
	}
}

// FormatNameAsPoleEmploi trims, strips accents and uppercases a name the
// way the legacy system stores it.
func FormatNameAsPoleEmploi(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, strings.TrimSpace(name))
	if err != nil {
		stripped = strings.TrimSpace(name)
	}
	return strings.ToUpper(stripped)
}
