package email

const (
	subjectProlongationDeclaredFmt = "Prolongation du PASS IAE %s à valider"
)
