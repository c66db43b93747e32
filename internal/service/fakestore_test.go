package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/repository"
)

// memState — содержимое хранилища в памяти.
type memState struct {
	documents    map[string]model.Document
	users        map[string]*string
	suggestions  map[string]model.Suggestion
	frameworks   map[string]model.RegulatoryFramework
	requirements map[string]model.RegulatoryRequirement
	processes    []model.BusinessProcess
	risks        []model.Risk
	controls     []model.Control
	audit        []model.AuditEntry
	seq          int
}

func newMemState() *memState {
	return &memState{
		documents:    map[string]model.Document{},
		users:        map[string]*string{},
		suggestions:  map[string]model.Suggestion{},
		frameworks:   map[string]model.RegulatoryFramework{},
		requirements: map[string]model.RegulatoryRequirement{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		documents:    maps.Clone(s.documents),
		users:        maps.Clone(s.users),
		suggestions:  make(map[string]model.Suggestion, len(s.suggestions)),
		frameworks:   maps.Clone(s.frameworks),
		requirements: maps.Clone(s.requirements),
		processes:    append([]model.BusinessProcess(nil), s.processes...),
		risks:        append([]model.Risk(nil), s.risks...),
		controls:     append([]model.Control(nil), s.controls...),
		audit:        append([]model.AuditEntry(nil), s.audit...),
		seq:          s.seq,
	}
	for id, sug := range s.suggestions {
		sug.Content = maps.Clone(sug.Content)
		c.suggestions[id] = sug
	}
	return c
}

// now возвращает монотонное время для упорядочивания записей.
func (s *memState) now() time.Time {
	s.seq++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Millisecond)
}

// faults — внедряемые сбои.
type faults struct {
	auditInsert   error
	createBatch   error
	createControl error
	getDocument   error
	// statusWrite возвращает ошибку записи статуса документа
	statusWrite func(status model.DocumentStatus) error
}

// fakeStore — транзакционное хранилище в памяти.
// Транзакция работает с копией состояния и подменяет его при фиксации;
// транзакции выполняются последовательно.
type fakeStore struct {
	mu     sync.Mutex
	state  *memState
	faults faults
	// beforeCommit вызывается внутри транзакции перед фиксацией
	beforeCommit func()
	// wrapTx подменяет репозитории транзакции
	wrapTx func(repos repository.Repositories) repository.Repositories
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: newMemState()}
}

func (f *fakeStore) Repos() repository.Repositories {
	return newMemRepos(&memDB{store: f})
}

func (f *fakeStore) RunInTx(ctx context.Context, fn func(repos repository.Repositories) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx := f.state.clone()
	repos := newMemRepos(&memDB{store: f, tx: tx})
	if f.wrapTx != nil {
		repos = f.wrapTx(repos)
	}
	if err := fn(repos); err != nil {
		return err
	}
	if f.beforeCommit != nil {
		f.beforeCommit()
	}
	f.state = tx
	return nil
}

// snapshot возвращает копию текущего состояния для проверок.
func (f *fakeStore) snapshot() *memState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.clone()
}

// memDB выполняет операцию над состоянием транзакции или,
// вне транзакции, над текущим состоянием под блокировкой.
type memDB struct {
	store *fakeStore
	tx    *memState
}

func (d *memDB) do(fn func(s *memState) error) error {
	if d.tx != nil {
		return fn(d.tx)
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	return fn(d.store.state)
}

func newMemRepos(db *memDB) repository.Repositories {
	return repository.Repositories{
		Documents:    memDocuments{db},
		Users:        memUsers{db},
		Suggestions:  memSuggestions{db},
		Frameworks:   memFrameworks{db},
		Requirements: memRequirements{db},
		Register:     memRegister{db},
		Audit:        memAudit{db},
	}
}

func sameID(a *string, b string) bool {
	return a != nil && *a == b
}

// --- Документы ---

type memDocuments struct{ db *memDB }

func (r memDocuments) Create(_ context.Context, doc *model.Document) error {
	return r.db.do(func(s *memState) error {
		doc.CreatedAt = s.now()
		doc.UpdatedAt = doc.CreatedAt
		s.documents[doc.ID] = *doc
		return nil
	})
}

func (r memDocuments) GetByID(_ context.Context, id string) (*model.Document, error) {
	var out *model.Document
	err := r.db.do(func(s *memState) error {
		if r.db.store.faults.getDocument != nil {
			return r.db.store.faults.getDocument
		}
		doc, ok := s.documents[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &doc
		return nil
	})
	return out, err
}

func (r memDocuments) UpdateStatus(_ context.Context, id string, status model.DocumentStatus) error {
	return r.db.do(func(s *memState) error {
		if fn := r.db.store.faults.statusWrite; fn != nil {
			if err := fn(status); err != nil {
				return err
			}
		}
		doc, ok := s.documents[id]
		if !ok {
			return repository.ErrNotFound
		}
		doc.Status = status
		doc.UpdatedAt = s.now()
		s.documents[id] = doc
		return nil
	})
}

// --- Пользователи ---

type memUsers struct{ db *memDB }

func (r memUsers) Upsert(_ context.Context, u *model.User) error {
	return r.db.do(func(s *memState) error {
		s.users[u.ID] = u.TenantID
		return nil
	})
}

func (r memUsers) GetTenantID(_ context.Context, userID string) (*string, error) {
	var out *string
	err := r.db.do(func(s *memState) error {
		tenant, ok := s.users[userID]
		if !ok {
			return repository.ErrNotFound
		}
		out = tenant
		return nil
	})
	return out, err
}

// --- Предложения ---

type memSuggestions struct{ db *memDB }

func (r memSuggestions) CreateBatch(_ context.Context, items []*model.Suggestion) error {
	return r.db.do(func(s *memState) error {
		if err := r.db.store.faults.createBatch; err != nil {
			return err
		}
		for _, item := range items {
			item.CreatedAt = s.now()
			item.UpdatedAt = item.CreatedAt
			cp := *item
			cp.Content = maps.Clone(item.Content)
			s.suggestions[item.ID] = cp
		}
		return nil
	})
}

func (r memSuggestions) GetByID(_ context.Context, id string, tenantID *string) (*model.Suggestion, error) {
	var out *model.Suggestion
	err := r.db.do(func(s *memState) error {
		sug, ok := s.suggestions[id]
		if !ok || !sameTenant(sug.TenantID, tenantID) {
			return repository.ErrNotFound
		}
		sug.Content = maps.Clone(sug.Content)
		out = &sug
		return nil
	})
	return out, err
}

func (r memSuggestions) list(match func(model.Suggestion) bool) []*model.Suggestion {
	var out []*model.Suggestion
	_ = r.db.do(func(s *memState) error {
		for _, sug := range s.suggestions {
			if match(sug) {
				sug := sug
				out = append(out, &sug)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r memSuggestions) ListByDocument(_ context.Context, documentID string, tenantID *string) ([]*model.Suggestion, error) {
	return r.list(func(s model.Suggestion) bool {
		return s.DocumentID == documentID && sameTenant(s.TenantID, tenantID)
	}), nil
}

func (r memSuggestions) ListAssigned(_ context.Context, reviewerID string, tenantID *string, status model.SuggestionStatus) ([]*model.Suggestion, error) {
	return r.list(func(s model.Suggestion) bool {
		return sameID(s.AssignedReviewerID, reviewerID) && sameTenant(s.TenantID, tenantID) && s.Status == status
	}), nil
}

func (r memSuggestions) Transition(_ context.Context, t repository.SuggestionTransition) (bool, error) {
	var ok bool
	err := r.db.do(func(s *memState) error {
		sug, found := s.suggestions[t.ID]
		if !found || !sameTenant(sug.TenantID, t.TenantID) || sug.Status != t.From {
			return nil
		}
		sug.Status = t.To
		if t.AssignedReviewerID != nil {
			sug.AssignedReviewerID = t.AssignedReviewerID
		}
		if t.Content != nil {
			sug.Content = maps.Clone(t.Content)
		}
		sug.UpdatedAt = s.now()
		s.suggestions[t.ID] = sug
		ok = true
		return nil
	})
	return ok, err
}

// --- Законы ---

type memFrameworks struct{ db *memDB }

func (r memFrameworks) FindByName(_ context.Context, tenantID *string, name string) (*model.RegulatoryFramework, error) {
	var out *model.RegulatoryFramework
	err := r.db.do(func(s *memState) error {
		for _, fw := range s.frameworks {
			if fw.Name == name && sameTenant(fw.TenantID, tenantID) {
				fw := fw
				out = &fw
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

// frameworkDocumentTaken проверяет уникальность document_id среди законов.
func (s *memState) frameworkDocumentTaken(documentID *string, exceptID string) bool {
	if documentID == nil {
		return false
	}
	for id, fw := range s.frameworks {
		if id != exceptID && sameID(fw.DocumentID, *documentID) {
			return true
		}
	}
	return false
}

func (r memFrameworks) InsertIfAbsent(_ context.Context, f *model.RegulatoryFramework) (bool, error) {
	var inserted bool
	err := r.db.do(func(s *memState) error {
		for _, fw := range s.frameworks {
			if fw.Name == f.Name && sameTenant(fw.TenantID, f.TenantID) {
				return nil
			}
		}
		if s.frameworkDocumentTaken(f.DocumentID, f.ID) {
			return fmt.Errorf("document_id уже привязан: %w", repository.ErrConflict)
		}
		f.CreatedAt = s.now()
		f.UpdatedAt = f.CreatedAt
		s.frameworks[f.ID] = *f
		inserted = true
		return nil
	})
	return inserted, err
}

func (r memFrameworks) Update(_ context.Context, f *model.RegulatoryFramework) error {
	return r.db.do(func(s *memState) error {
		cur, ok := s.frameworks[f.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if s.frameworkDocumentTaken(f.DocumentID, f.ID) {
			return fmt.Errorf("document_id уже привязан: %w", repository.ErrConflict)
		}
		cur.Description = f.Description
		cur.Version = f.Version
		cur.DocumentID = f.DocumentID
		cur.UpdatedAt = s.now()
		s.frameworks[f.ID] = cur
		return nil
	})
}

func (r memFrameworks) UnlinkDocument(_ context.Context, documentID string, keepID *string) error {
	return r.db.do(func(s *memState) error {
		for id, fw := range s.frameworks {
			if sameID(fw.DocumentID, documentID) && !sameID(keepID, id) {
				fw.DocumentID = nil
				s.frameworks[id] = fw
			}
		}
		return nil
	})
}

func (r memFrameworks) List(_ context.Context, tenantID *string) ([]*model.RegulatoryFramework, error) {
	var out []*model.RegulatoryFramework
	err := r.db.do(func(s *memState) error {
		for _, fw := range s.frameworks {
			if sameTenant(fw.TenantID, tenantID) {
				fw := fw
				out = append(out, &fw)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// --- Требования ---

type memRequirements struct{ db *memDB }

func (r memRequirements) FindByName(_ context.Context, tenantID *string, frameworkID, name string) (*model.RegulatoryRequirement, error) {
	var out *model.RegulatoryRequirement
	err := r.db.do(func(s *memState) error {
		for _, req := range s.requirements {
			if req.Name == name && req.FrameworkID == frameworkID && sameTenant(req.TenantID, tenantID) {
				req := req
				out = &req
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (s *memState) requirementDocumentTaken(documentID *string, exceptID string) bool {
	if documentID == nil {
		return false
	}
	for id, req := range s.requirements {
		if id != exceptID && sameID(req.DocumentID, *documentID) {
			return true
		}
	}
	return false
}

func (r memRequirements) InsertIfAbsent(_ context.Context, req *model.RegulatoryRequirement) (bool, error) {
	var inserted bool
	err := r.db.do(func(s *memState) error {
		if _, ok := s.frameworks[req.FrameworkID]; !ok {
			return fmt.Errorf("framework_id %s не существует", req.FrameworkID)
		}
		for _, cur := range s.requirements {
			if cur.Name == req.Name && cur.FrameworkID == req.FrameworkID && sameTenant(cur.TenantID, req.TenantID) {
				return nil
			}
		}
		if s.requirementDocumentTaken(req.DocumentID, req.ID) {
			return fmt.Errorf("document_id уже привязан: %w", repository.ErrConflict)
		}
		req.CreatedAt = s.now()
		req.UpdatedAt = req.CreatedAt
		s.requirements[req.ID] = *req
		inserted = true
		return nil
	})
	return inserted, err
}

func (r memRequirements) Update(_ context.Context, req *model.RegulatoryRequirement) error {
	return r.db.do(func(s *memState) error {
		cur, ok := s.requirements[req.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if s.requirementDocumentTaken(req.DocumentID, req.ID) {
			return fmt.Errorf("document_id уже привязан: %w", repository.ErrConflict)
		}
		cur.Description = req.Description
		cur.DocumentID = req.DocumentID
		cur.UpdatedAt = s.now()
		s.requirements[req.ID] = cur
		return nil
	})
}

func (r memRequirements) UnlinkDocument(_ context.Context, documentID string, keepID *string) error {
	return r.db.do(func(s *memState) error {
		for id, req := range s.requirements {
			if sameID(req.DocumentID, documentID) && !sameID(keepID, id) {
				req.DocumentID = nil
				s.requirements[id] = req
			}
		}
		return nil
	})
}

func (r memRequirements) ListByFramework(_ context.Context, frameworkID string) ([]*model.RegulatoryRequirement, error) {
	var out []*model.RegulatoryRequirement
	err := r.db.do(func(s *memState) error {
		for _, req := range s.requirements {
			if req.FrameworkID == frameworkID {
				req := req
				out = append(out, &req)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// --- Реестр ---

type memRegister struct{ db *memDB }

func (r memRegister) CreateBusinessProcess(_ context.Context, bp *model.BusinessProcess) error {
	return r.db.do(func(s *memState) error {
		bp.CreatedAt = s.now()
		s.processes = append(s.processes, *bp)
		return nil
	})
}

func (r memRegister) CreateRisk(_ context.Context, risk *model.Risk) error {
	return r.db.do(func(s *memState) error {
		risk.CreatedAt = s.now()
		s.risks = append(s.risks, *risk)
		return nil
	})
}

func (r memRegister) CreateControl(_ context.Context, ctrl *model.Control) error {
	return r.db.do(func(s *memState) error {
		if err := r.db.store.faults.createControl; err != nil {
			return err
		}
		ctrl.CreatedAt = s.now()
		s.controls = append(s.controls, *ctrl)
		return nil
	})
}

// --- Аудит ---

type memAudit struct{ db *memDB }

func (r memAudit) Insert(_ context.Context, e *model.AuditEntry) error {
	return r.db.do(func(s *memState) error {
		if err := r.db.store.faults.auditInsert; err != nil {
			return err
		}
		e.CreatedAt = s.now()
		s.audit = append(s.audit, *e)
		return nil
	})
}

func (r memAudit) ListByEntity(_ context.Context, entityType, entityID string) ([]*model.AuditEntry, error) {
	var out []*model.AuditEntry
	err := r.db.do(func(s *memState) error {
		for _, e := range s.audit {
			if e.EntityType == entityType && e.EntityID == entityID {
				e := e
				out = append(out, &e)
			}
		}
		return nil
	})
	return out, err
}

// --- Вспомогательные функции тестов ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// seedSuggestion добавляет предложение в хранилище.
func (f *fakeStore) seedSuggestion(sug model.Suggestion) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sug.Content == nil {
		sug.Content = map[string]any{}
	}
	sug.CreatedAt = f.state.now()
	f.state.suggestions[sug.ID] = sug
}

// seedDocument добавляет документ и загрузившего пользователя.
func (f *fakeStore) seedDocument(doc model.Document, tenantID *string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.CreatedAt = f.state.now()
	f.state.documents[doc.ID] = doc
	f.state.users[doc.UploadedBy] = tenantID
}
