package model

// ClassificationKind — вид регуляторного документа.
type ClassificationKind string

const (
	// KindLaw — закон, порождает RegulatoryFramework
	KindLaw ClassificationKind = "Law"
	// KindRegulation — статья/регламент, порождает RegulatoryRequirement
	KindRegulation ClassificationKind = "Regulation"
)

// DefaultParentName — имя родительского закона, если LLM его не указала.
const DefaultParentName = "Unknown Law"

// Classification — классификация документа, предложенная LLM.
type Classification struct {
	Kind        ClassificationKind `json:"kind"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Version     string             `json:"version,omitempty"`
	// Имя родительского закона (только для Regulation)
	ParentName string `json:"parent_name,omitempty"`
}

// Proposal — одно предложение LLM до сохранения.
type Proposal struct {
	Type            SuggestionType `json:"type"`
	Content         map[string]any `json:"content"`
	Rationale       string         `json:"rationale"`
	SourceReference string         `json:"source_reference"`
}

// AnalysisResult — результат анализа текста документа.
type AnalysisResult struct {
	Suggestions    []Proposal      `json:"suggestions"`
	Classification *Classification `json:"classification,omitempty"`
}
