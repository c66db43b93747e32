package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// systemPrompt задаёт модели формат ответа.
const systemPrompt = `You are an expert AI Legal Specialist in Risk and Compliance.
Your task is to analyze the provided regulatory document text, identify potential
Risks, Controls and Business Processes, and classify the document itself.

Return a single JSON object with the following structure:
{
  "suggestions": [
    {
      "type": "risk" | "control" | "business_process",
      "content": {
        "risk_name": "Short risk title (risks only)",
        "risk_description": "Description of the risk (risks only)",
        "control_name": "Short control title (controls only)",
        "control_description": "Description of the control (controls only)",
        "control_type": "Preventive|Detective|Corrective (controls only)",
        "business_process_name": "Affected business process"
      },
      "rationale": "Why this matters and how it follows from the text",
      "source_reference": "Specific citation from the document (e.g. 'Section 4.2')"
    }
  ],
  "classification": {
    "kind": "Law" | "Regulation",
    "name": "Name of the law or of the article/regulation",
    "description": "One-sentence summary",
    "version": "Version or year if stated",
    "parent_name": "For a Regulation: the name of the parent Law"
  }
}

IMPORTANT:
- "type" must be EXACTLY one of "risk", "control", "business_process"
- "content" must be a JSON object, not flat fields
- "rationale" and "source_reference" are required for every suggestion
- omit "classification" if the document cannot be classified
Output MUST be valid JSON matching this exact structure.`

// rawAnalysis — ответ модели до проверки. Указатели различают
// отсутствующее поле и пустое значение.
type rawAnalysis struct {
	Suggestions    *[]rawSuggestion   `json:"suggestions"`
	Classification *rawClassification `json:"classification"`
}

type rawSuggestion struct {
	Type            *string        `json:"type"`
	Content         map[string]any `json:"content"`
	Rationale       *string        `json:"rationale"`
	SourceReference *string        `json:"source_reference"`
}

type rawClassification struct {
	Kind        *string `json:"kind"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Version     *string `json:"version"`
	ParentName  *string `json:"parent_name"`
}

// parseAnalysis разбирает и проверяет ответ модели целиком.
func parseAnalysis(data []byte) (*model.AnalysisResult, error) {
	var raw rawAnalysis
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ответ модели не соответствует схеме: %w", err)
	}
	if raw.Suggestions == nil {
		return nil, errors.New("в ответе отсутствует поле suggestions")
	}

	result := &model.AnalysisResult{
		Suggestions: make([]model.Proposal, 0, len(*raw.Suggestions)),
	}
	for i, s := range *raw.Suggestions {
		p, err := s.validate()
		if err != nil {
			return nil, fmt.Errorf("suggestions[%d]: %w", i, err)
		}
		result.Suggestions = append(result.Suggestions, p)
	}

	if raw.Classification != nil {
		cls, err := raw.Classification.validate()
		if err != nil {
			return nil, fmt.Errorf("classification: %w", err)
		}
		result.Classification = cls
	}
	return result, nil
}

func (s rawSuggestion) validate() (model.Proposal, error) {
	if s.Type == nil {
		return model.Proposal{}, errors.New("отсутствует поле type")
	}
	typ, err := model.ParseSuggestionType(*s.Type)
	if err != nil {
		return model.Proposal{}, err
	}
	if s.Content == nil {
		return model.Proposal{}, errors.New("поле content должно быть объектом")
	}
	if s.Rationale == nil {
		return model.Proposal{}, errors.New("отсутствует поле rationale")
	}
	if s.SourceReference == nil {
		return model.Proposal{}, errors.New("отсутствует поле source_reference")
	}
	return model.Proposal{
		Type:            typ,
		Content:         s.Content,
		Rationale:       *s.Rationale,
		SourceReference: *s.SourceReference,
	}, nil
}

func (c rawClassification) validate() (*model.Classification, error) {
	if c.Kind == nil {
		return nil, errors.New("отсутствует поле kind")
	}
	kind := model.ClassificationKind(*c.Kind)
	if kind != model.KindLaw && kind != model.KindRegulation {
		return nil, fmt.Errorf("недопустимый kind: %q, допустимые: Law, Regulation", *c.Kind)
	}
	if c.Name == nil || strings.TrimSpace(*c.Name) == "" {
		return nil, errors.New("отсутствует поле name")
	}
	return &model.Classification{
		Kind:        kind,
		Name:        strings.TrimSpace(*c.Name),
		Description: deref(c.Description),
		Version:     deref(c.Version),
		ParentName:  strings.TrimSpace(deref(c.ParentName)),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
