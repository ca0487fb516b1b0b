package domain

// Origin records how an approval came into existence.
type Origin string

const (
	OriginDefault    Origin = "default"
	OriginAdmin      Origin = "admin"
	OriginPEApproval Origin = "pe_approval"
	OriginAIStock    Origin = "ai_stock"
)

// IsKnown reports whether o is one of the declared origins.
func (o Origin) IsKnown() bool {
	switch o {
	case OriginDefault, OriginAdmin, OriginPEApproval, OriginAIStock:
		return true
	}
	return false
}

// SuspensionReason is the legal ground for pausing an approval.
type SuspensionReason string

const (
	SuspensionSickness                  SuspensionReason = "SICKNESS"
	SuspensionMaternity                 SuspensionReason = "MATERNITY"
	SuspensionIncarceration             SuspensionReason = "INCARCERATION"
	SuspensionTrialOutsideIAE           SuspensionReason = "TRIAL_OUTSIDE_IAE"
	SuspensionDetoxification            SuspensionReason = "DETOXIFICATION"
	SuspensionForceMajeure              SuspensionReason = "FORCE_MAJEURE"
	SuspensionBrokenContract            SuspensionReason = "BROKEN_CONTRACT"
	SuspensionFinishedContract          SuspensionReason = "FINISHED_CONTRACT"
	SuspensionApprovalBetweenCTAMembers SuspensionReason = "APPROVAL_BETWEEN_CTA_MEMBERS"
	SuspensionContratPasserelle         SuspensionReason = "CONTRAT_PASSERELLE"
)

var suspensionReasonLabels = map[SuspensionReason]string{
	SuspensionSickness:                  "Arrêt pour cause de maladie",
	SuspensionMaternity:                 "Congé de maternité",
	SuspensionIncarceration:             "Incarcération",
	SuspensionTrialOutsideIAE:           "Période d'essai auprès d'un employeur ne relevant pas de l'insertion par l'activité économique",
	SuspensionDetoxification:            "Période de cure pour désintoxication",
	SuspensionForceMajeure:              "Raison de force majeure conduisant le salarié à quitter son emploi",
	SuspensionBrokenContract:            "Rupture du contrat de travail",
	SuspensionFinishedContract:          "Fin du contrat de travail",
	SuspensionApprovalBetweenCTAMembers: "Situation faisant l'objet d'un accord entre les acteurs membres du CTA",
	SuspensionContratPasserelle:         "Bascule dans l'expérimentation contrat passerelle",
}

// ReasonsAllowingUnsuspend lists the suspension reasons that a new hiring may cut short.
var ReasonsAllowingUnsuspend = []SuspensionReason{
	SuspensionBrokenContract,
	SuspensionFinishedContract,
	SuspensionApprovalBetweenCTAMembers,
	SuspensionContratPasserelle,
}

// IsKnown reports whether r is a declared reason.
func (r SuspensionReason) IsKnown() bool {
	_, ok := suspensionReasonLabels[r]
	return ok
}

// Label returns the human readable reason.
func (r SuspensionReason) Label() string {
	return suspensionReasonLabels[r]
}

// AllowsUnsuspend reports whether a suspension for r can end early on hiring.
func (r SuspensionReason) AllowsUnsuspend() bool {
	for _, allowed := range ReasonsAllowingUnsuspend {
		if r == allowed {
			return true
		}
	}
	return false
}

// ProlongationReason is the legal ground for extending an approval.
type ProlongationReason string

const (
	ProlongationSeniorCDI              ProlongationReason = "SENIOR_CDI"
	ProlongationCompleteTraining       ProlongationReason = "COMPLETE_TRAINING"
	ProlongationRQTH                   ProlongationReason = "RQTH"
	ProlongationSenior                 ProlongationReason = "SENIOR"
	ProlongationParticularDifficulties ProlongationReason = "PARTICULAR_DIFFICULTIES"
	ProlongationHealthContext          ProlongationReason = "HEALTH_CONTEXT"
)

type prolongationRule struct {
	label              string
	cumulativeCapDays  int
	singleMaxDays      int
	requiresReport     bool
	requiresPrescriber bool
	allowsInterview    bool
}

var prolongationRules = map[ProlongationReason]prolongationRule{
	ProlongationSeniorCDI: {
		label:             "CDI conclu avec une personne âgée d'au moins 57 ans",
		cumulativeCapDays: 3650,
		singleMaxDays:     3650,
	},
	ProlongationCompleteTraining: {
		label:             "Fin d'une formation",
		cumulativeCapDays: 365,
		singleMaxDays:     365,
	},
	ProlongationRQTH: {
		label:              "RQTH - Reconnaissance de la qualité de travailleur handicapé",
		cumulativeCapDays:  1095,
		singleMaxDays:      365,
		requiresReport:     true,
		requiresPrescriber: true,
	},
	ProlongationSenior: {
		label:              "50 ans et plus",
		cumulativeCapDays:  1825,
		singleMaxDays:      365,
		requiresReport:     true,
		requiresPrescriber: true,
	},
	ProlongationParticularDifficulties: {
		label:              "Difficultés particulières qui font obstacle à l'insertion durable dans l'emploi",
		cumulativeCapDays:  1095,
		singleMaxDays:      365,
		requiresReport:     true,
		requiresPrescriber: true,
		allowsInterview:    true,
	},
	ProlongationHealthContext: {
		label:              "Contexte sanitaire",
		cumulativeCapDays:  365,
		singleMaxDays:      365,
		requiresPrescriber: true,
	},
}

// IsKnown reports whether r is a declared reason.
func (r ProlongationReason) IsKnown() bool {
	_, ok := prolongationRules[r]
	return ok
}

// Label returns the human readable reason.
func (r ProlongationReason) Label() string {
	return prolongationRules[r].label
}

// CumulativeCapDays is the total length all prolongations for r may reach on one approval.
func (r ProlongationReason) CumulativeCapDays() int {
	return prolongationRules[r].cumulativeCapDays
}

// SingleMaxDays is the maximum length of one prolongation for r.
func (r ProlongationReason) SingleMaxDays() int {
	return prolongationRules[r].singleMaxDays
}

// RequiresReport reports whether a prolongation for r must carry a report file.
func (r ProlongationReason) RequiresReport() bool {
	return prolongationRules[r].requiresReport
}

// RequiresPrescriber reports whether an authorized prescriber must validate r.
func (r ProlongationReason) RequiresPrescriber() bool {
	return prolongationRules[r].requiresPrescriber
}

// AllowsPhoneInterview reports whether the prescriber may ask for a phone interview.
func (r ProlongationReason) AllowsPhoneInterview() bool {
	return prolongationRules[r].allowsInterview
}
