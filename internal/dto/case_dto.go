package dto

type GetOrCreateCaseRequest struct {
	CaseReference  string `json:"case_reference"`
	ClientInitials string `json:"client_initials"`
}

type EditRecordingRequest struct {
	AdditionalNotes *string `json:"additional_notes"`
	Tags            *string `json:"tags"`
	SummaryText     *string `json:"summary_text"`
}

type SummarizeRequest struct {
	Instructions string `json:"instructions"`
}
