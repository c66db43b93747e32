package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/complyreg/register-module/internal/domain/lifecycle"
	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/repository"
)

func pendingSuggestion(id string, tenantID *string) model.Suggestion {
	return model.Suggestion{
		ID:              id,
		TenantID:        tenantID,
		DocumentID:      "doc-1",
		Type:            model.SuggestionRisk,
		Content:         map[string]any{"risk_name": "Data Leak"},
		Rationale:       "Article 5 requires safeguards",
		SourceReference: "Article 5",
		Status:          model.StatusPending,
	}
}

func TestPromote(t *testing.T) {
	store := newFakeStore()
	tenant := strPtr("t1")
	store.seedSuggestion(pendingSuggestion("s1", tenant))
	svc := NewSuggestionService(store, testLogger())

	got, err := svc.Promote(context.Background(), PromoteRequest{
		SuggestionID:       "s1",
		ActorID:            "compliance-1",
		TenantID:           tenant,
		AssignedReviewerID: strPtr("bpo-1"),
		ContentPatch:       map[string]any{"risk_name": "Data Leak v2", "business_process_name": "Onboarding"},
	})
	if err != nil {
		t.Fatalf("Promote() ошибка: %v", err)
	}
	if got.Status != model.StatusPendingReview {
		t.Errorf("Status = %s, ожидали pending_review", got.Status)
	}
	if !sameID(got.AssignedReviewerID, "bpo-1") {
		t.Errorf("AssignedReviewerID = %v, ожидали bpo-1", got.AssignedReviewerID)
	}
	if got.Content["risk_name"] != "Data Leak v2" || got.Content["business_process_name"] != "Onboarding" {
		t.Errorf("Content = %v", got.Content)
	}

	s := store.snapshot()
	if len(s.audit) != 1 {
		t.Fatalf("записей аудита = %d, ожидали 1", len(s.audit))
	}
	entry := s.audit[0]
	if entry.Action != model.ActionPromoteSuggestion || entry.EntityID != "s1" || entry.ActorID != "compliance-1" {
		t.Errorf("запись аудита = %+v", entry)
	}
	status, ok := entry.Changes["status"].(model.FieldChange)
	if !ok || status.Old != model.StatusPending || status.New != model.StatusPendingReview {
		t.Errorf("changes.status = %v", entry.Changes["status"])
	}
	content, ok := entry.Changes["content"].(map[string]model.FieldChange)
	if !ok {
		t.Fatalf("changes.content = %T", entry.Changes["content"])
	}
	if c := content["risk_name"]; c.Old != "Data Leak" || c.New != "Data Leak v2" {
		t.Errorf("diff risk_name = %+v", c)
	}
	if c := content["business_process_name"]; c.Old != nil || c.New != "Onboarding" {
		t.Errorf("diff business_process_name = %+v", c)
	}
}

func TestPromote_WithoutReviewer(t *testing.T) {
	store := newFakeStore()
	store.seedSuggestion(pendingSuggestion("s1", nil))
	svc := NewSuggestionService(store, testLogger())

	got, err := svc.Promote(context.Background(), PromoteRequest{SuggestionID: "s1", ActorID: "compliance-1"})
	if err != nil {
		t.Fatalf("Promote() ошибка: %v", err)
	}
	if got.AssignedReviewerID != nil {
		t.Errorf("AssignedReviewerID = %v, ожидали nil", *got.AssignedReviewerID)
	}
	entry := store.snapshot().audit[0]
	if _, ok := entry.Changes["assigned_reviewer_id"]; ok {
		t.Error("assigned_reviewer_id не должен попадать в аудит без назначения")
	}
	if _, ok := entry.Changes["content"]; ok {
		t.Error("content не должен попадать в аудит без правок")
	}
}

func TestReject(t *testing.T) {
	store := newFakeStore()
	store.seedSuggestion(pendingSuggestion("s1", strPtr("t1")))
	svc := NewSuggestionService(store, testLogger())

	got, err := svc.Reject(context.Background(), RejectRequest{
		SuggestionID: "s1",
		ActorID:      "compliance-1",
		TenantID:     strPtr("t1"),
		Reason:       "дубликат",
	})
	if err != nil {
		t.Fatalf("Reject() ошибка: %v", err)
	}
	if got.Status != model.StatusRejected {
		t.Errorf("Status = %s, ожидали rejected", got.Status)
	}
	entry := store.snapshot().audit[0]
	if entry.Action != model.ActionRejectSuggestion || entry.Changes["reason"] != "дубликат" {
		t.Errorf("запись аудита = %+v", entry)
	}
}

func TestSuggestionTransitions_Conflict(t *testing.T) {
	tests := []struct {
		name    string
		status  model.SuggestionStatus
		promote bool
	}{
		{"promote из pending_review", model.StatusPendingReview, true},
		{"promote из active", model.StatusActive, true},
		{"reject из archived", model.StatusArchived, false},
		{"reject из rejected", model.StatusRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			sug := pendingSuggestion("s1", nil)
			sug.Status = tt.status
			store.seedSuggestion(sug)
			svc := NewSuggestionService(store, testLogger())

			var err error
			if tt.promote {
				_, err = svc.Promote(context.Background(), PromoteRequest{SuggestionID: "s1", ActorID: "u"})
			} else {
				_, err = svc.Reject(context.Background(), RejectRequest{SuggestionID: "s1", ActorID: "u"})
			}

			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("ожидали ConflictError, получили %v", err)
			}
			if conflict.Current != tt.status {
				t.Errorf("Current = %s, ожидали %s", conflict.Current, tt.status)
			}
			if !errors.Is(err, ErrConflict) {
				t.Error("ConflictError должен удовлетворять errors.Is(ErrConflict)")
			}

			s := store.snapshot()
			if s.suggestions["s1"].Status != tt.status {
				t.Errorf("статус изменился: %s", s.suggestions["s1"].Status)
			}
			if len(s.audit) != 0 {
				t.Errorf("записей аудита = %d, ожидали 0", len(s.audit))
			}
		})
	}
}

// racingSuggestions перед условным UPDATE переводит предложение
// в status, имитируя конкурентную транзакцию.
type racingSuggestions struct {
	repository.SuggestionRepository
	status model.SuggestionStatus
}

func (r racingSuggestions) Transition(ctx context.Context, t repository.SuggestionTransition) (bool, error) {
	if _, err := r.SuggestionRepository.Transition(ctx, repository.SuggestionTransition{
		ID: t.ID, TenantID: t.TenantID, From: t.From, To: r.status,
	}); err != nil {
		return false, err
	}
	return r.SuggestionRepository.Transition(ctx, t)
}

func TestPromote_LostRace(t *testing.T) {
	store := newFakeStore()
	store.seedSuggestion(pendingSuggestion("s1", nil))
	store.wrapTx = func(repos repository.Repositories) repository.Repositories {
		repos.Suggestions = racingSuggestions{SuggestionRepository: repos.Suggestions, status: model.StatusRejected}
		return repos
	}
	svc := NewSuggestionService(store, testLogger())

	_, err := svc.Promote(context.Background(), PromoteRequest{SuggestionID: "s1", ActorID: "u"})

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("ожидали ConflictError, получили %v", err)
	}
	if conflict.Current != model.StatusRejected || conflict.Event != lifecycle.EventPromote {
		t.Errorf("ConflictError = %+v, ожидали текущий статус rejected", conflict)
	}
	// Транзакция откатилась вместе с «конкурентным» изменением
	if st := store.snapshot().suggestions["s1"].Status; st != model.StatusPending {
		t.Errorf("статус = %s, ожидали pending после отката", st)
	}
}

func TestSuggestions_TenantScoped(t *testing.T) {
	store := newFakeStore()
	store.seedSuggestion(pendingSuggestion("s1", strPtr("t1")))
	svc := NewSuggestionService(store, testLogger())
	ctx := context.Background()

	if _, err := svc.Get(ctx, "s1", strPtr("t2")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() чужого арендатора: ожидали ErrNotFound, получили %v", err)
	}
	if _, err := svc.Get(ctx, "s1", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() без арендатора: ожидали ErrNotFound, получили %v", err)
	}
	if _, err := svc.Promote(ctx, PromoteRequest{SuggestionID: "s1", ActorID: "u", TenantID: strPtr("t2")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Promote() чужого арендатора: ожидали ErrNotFound, получили %v", err)
	}
	if _, err := svc.History(ctx, "s1", strPtr("t2")); !errors.Is(err, ErrNotFound) {
		t.Errorf("History() чужого арендатора: ожидали ErrNotFound, получили %v", err)
	}
	items, err := svc.ListByDocument(ctx, "doc-1", strPtr("t2"))
	if err != nil || len(items) != 0 {
		t.Errorf("ListByDocument() чужого арендатора = %d, %v", len(items), err)
	}
	if st := store.snapshot().suggestions["s1"].Status; st != model.StatusPending {
		t.Errorf("статус изменился: %s", st)
	}
}

func TestListAssigned(t *testing.T) {
	store := newFakeStore()
	tenant := strPtr("t1")
	for _, id := range []string{"s1", "s2", "s3"} {
		store.seedSuggestion(pendingSuggestion(id, tenant))
	}
	svc := NewSuggestionService(store, testLogger())
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		if _, err := svc.Promote(ctx, PromoteRequest{
			SuggestionID: id, ActorID: "c", TenantID: tenant, AssignedReviewerID: strPtr("bpo-1"),
		}); err != nil {
			t.Fatalf("Promote(%s) ошибка: %v", id, err)
		}
	}
	if _, err := svc.Promote(ctx, PromoteRequest{
		SuggestionID: "s3", ActorID: "c", TenantID: tenant, AssignedReviewerID: strPtr("bpo-2"),
	}); err != nil {
		t.Fatalf("Promote(s3) ошибка: %v", err)
	}

	items, err := svc.ListAssigned(ctx, "bpo-1", tenant)
	if err != nil {
		t.Fatalf("ListAssigned() ошибка: %v", err)
	}
	if len(items) != 2 || items[0].ID != "s1" || items[1].ID != "s2" {
		t.Errorf("очередь bpo-1 = %v", items)
	}
}

func TestHistory(t *testing.T) {
	store := newFakeStore()
	tenant := strPtr("t1")
	sug := pendingSuggestion("s1", tenant)
	store.seedSuggestion(sug)
	svc := NewSuggestionService(store, testLogger())
	assess := NewAssessmentService(store, testLogger())
	ctx := context.Background()

	if _, err := svc.Promote(ctx, PromoteRequest{SuggestionID: "s1", ActorID: "c", TenantID: tenant}); err != nil {
		t.Fatalf("Promote() ошибка: %v", err)
	}
	if _, err := assess.Discard(ctx, DiscardRequest{SuggestionID: "s1", ActorID: "bpo", TenantID: tenant}); err != nil {
		t.Fatalf("Discard() ошибка: %v", err)
	}

	entries, err := svc.History(ctx, "s1", tenant)
	if err != nil {
		t.Fatalf("History() ошибка: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("записей = %d, ожидали 2", len(entries))
	}
	if entries[0].Action != model.ActionPromoteSuggestion || entries[1].Action != model.ActionDiscardSuggestion {
		t.Errorf("порядок записей: %s, %s", entries[0].Action, entries[1].Action)
	}
}
