package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/domain/audit"
	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
	"github.com/Strob0t/Tasktrack/internal/domain/issue"
	"github.com/Strob0t/Tasktrack/internal/domain/task"
	"github.com/Strob0t/Tasktrack/internal/domain/user"
	"github.com/Strob0t/Tasktrack/internal/port/database"
	"github.com/Strob0t/Tasktrack/internal/port/filestore"
	"github.com/Strob0t/Tasktrack/internal/port/messagequeue"
	"github.com/Strob0t/Tasktrack/internal/port/summarizer"
)

// Ensure the mocks implement their ports at compile time.
var (
	_ database.Store        = (*mockStore)(nil)
	_ messagequeue.Queue    = (*mockQueue)(nil)
	_ filestore.Store       = (*mockFiles)(nil)
	_ summarizer.Summarizer = (*mockSummarizer)(nil)
)

// mockStore is an in-memory database.Store with the same compare-and-swap
// semantics as the Postgres store.
type mockStore struct {
	mu     sync.Mutex
	tasks  map[string]task.Task
	users  map[string]user.User
	issues map[string]issue.Issue
	audit  []audit.Entry

	// Error hooks: set these to inject failures.
	getUserErr    error
	updateTaskErr error
	getUserCalls  int

	// beforeUpdate runs at the start of UpdateTask, outside the lock, so a
	// test can land a concurrent write between a caller's read and write.
	beforeUpdate func()
}

func newMockStore() *mockStore {
	return &mockStore{
		tasks:  make(map[string]task.Task),
		users:  make(map[string]user.User),
		issues: make(map[string]issue.Issue),
	}
}

func key(orgID, id string) string { return orgID + "/" + id }

func cloneTask(t *task.Task) task.Task {
	c := *t
	if t.Document != nil {
		doc := *t.Document
		c.Document = &doc
	}
	return c
}

func (m *mockStore) appendAudit(e *audit.Entry) {
	if e != nil {
		m.audit = append(m.audit, *e)
	}
}

func (m *mockStore) CreateTask(_ context.Context, t *task.Task, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[key(t.OrgID, t.ID)]; ok {
		return domain.ErrConflict
	}
	t.Version = 1
	m.tasks[key(t.OrgID, t.ID)] = cloneTask(t)
	m.appendAudit(entry)
	return nil
}

func (m *mockStore) GetTask(_ context.Context, orgID, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[key(orgID, id)]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
	}
	c := cloneTask(&t)
	return &c, nil
}

func (m *mockStore) ListTasks(_ context.Context, orgID string, f task.ListFilter) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []task.Task{}
	for _, t := range m.tasks {
		if t.OrgID != orgID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
			continue
		}
		out = append(out, cloneTask(&t))
	}
	slices.SortFunc(out, func(a, b task.Task) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *mockStore) UpdateTask(_ context.Context, t *task.Task, entry *audit.Entry) error {
	if m.beforeUpdate != nil {
		hook := m.beforeUpdate
		m.beforeUpdate = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateTaskErr != nil {
		return m.updateTaskErr
	}
	cur, ok := m.tasks[key(t.OrgID, t.ID)]
	if !ok || cur.Version != t.Version {
		return fmt.Errorf("update task %s: %w", t.ID, domain.ErrConflict)
	}
	if err := t.CheckInvariants(); err != nil {
		return fmt.Errorf("update task %s: %w: %w", t.ID, domain.ErrValidation, err)
	}
	// Like the SQL store, the summary is only replaced along with the document.
	if cur.Document != nil && t.Document != nil &&
		cur.Document.ContentID == t.Document.ContentID && cur.Document.AttachedAt.Equal(t.Document.AttachedAt) {
		doc := *t.Document
		doc.SummaryState = cur.Document.SummaryState
		doc.Summary = cur.Document.Summary
		doc.SummaryError = cur.Document.SummaryError
		doc.SummarizedAt = cur.Document.SummarizedAt
		t.Document = &doc
	}
	t.Version++
	m.tasks[key(t.OrgID, t.ID)] = cloneTask(t)
	m.appendAudit(entry)
	return nil
}

func (m *mockStore) DeleteTask(_ context.Context, orgID, id string, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[key(orgID, id)]; !ok {
		return domain.ErrNotFound
	}
	delete(m.tasks, key(orgID, id))
	m.appendAudit(entry)
	return nil
}

func (m *mockStore) UpdateTaskSummary(_ context.Context, res *evidence.SummaryResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[key(res.OrgID, res.TaskID)]
	if !ok || !t.Document.Apply(res) {
		return fmt.Errorf("update summary: %w", domain.ErrNotFound)
	}
	m.tasks[key(res.OrgID, res.TaskID)] = t
	return nil
}

func (m *mockStore) TaskStats(_ context.Context, orgID string, now time.Time) (*task.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &task.Stats{ByStatus: map[task.Status]int{}, ByPriority: map[task.Priority]int{}}
	for _, t := range m.tasks {
		if t.OrgID != orgID {
			continue
		}
		st.Total++
		st.ByStatus[t.Status]++
		st.ByPriority[t.Priority]++
		if t.Overdue(now) {
			st.Overdue++
		} else if t.DueDate != nil && t.Status != task.StatusApproved && t.DueDate.Before(now.Add(task.DueSoonWindow)) {
			st.DueSoon++
		}
	}
	return st, nil
}

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.OrgID == u.OrgID && existing.Email == u.Email {
			return fmt.Errorf("create user: %w", domain.ErrConflict)
		}
	}
	m.users[key(u.OrgID, u.ID)] = *u
	return nil
}

func (m *mockStore) GetUser(_ context.Context, orgID, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getUserCalls++
	if m.getUserErr != nil {
		return nil, m.getUserErr
	}
	u, ok := m.users[key(orgID, id)]
	if !ok {
		return nil, fmt.Errorf("get user %s: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

func (m *mockStore) ListUsers(_ context.Context, orgID string) ([]user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []user.User{}
	for _, u := range m.users {
		if u.OrgID == orgID {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b user.User) int { return compareStrings(a.Name, b.Name) })
	return out, nil
}

func (m *mockStore) UpdateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[key(u.OrgID, u.ID)]; !ok {
		return domain.ErrNotFound
	}
	m.users[key(u.OrgID, u.ID)] = *u
	return nil
}

func (m *mockStore) CreateIssue(_ context.Context, i *issue.Issue, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i.Version = 1
	m.issues[key(i.OrgID, i.ID)] = *i
	m.appendAudit(entry)
	return nil
}

func (m *mockStore) GetIssue(_ context.Context, orgID, id string) (*issue.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.issues[key(orgID, id)]
	if !ok {
		return nil, fmt.Errorf("get issue %s: %w", id, domain.ErrNotFound)
	}
	return &i, nil
}

func (m *mockStore) ListIssues(_ context.Context, orgID string, f issue.ListFilter) ([]issue.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []issue.Issue{}
	for _, i := range m.issues {
		if i.OrgID != orgID {
			continue
		}
		if f.Status != "" && i.Status != f.Status {
			continue
		}
		if f.Severity != "" && i.Severity != f.Severity {
			continue
		}
		if f.InvolvingUser != "" && !i.Involves(f.InvolvingUser) {
			continue
		}
		out = append(out, i)
	}
	return out, nil
}

func (m *mockStore) UpdateIssue(_ context.Context, i *issue.Issue, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.issues[key(i.OrgID, i.ID)]
	if !ok || cur.Version != i.Version {
		return fmt.Errorf("update issue %s: %w", i.ID, domain.ErrConflict)
	}
	i.Version++
	m.issues[key(i.OrgID, i.ID)] = *i
	m.appendAudit(entry)
	return nil
}

func (m *mockStore) DeleteIssue(_ context.Context, orgID, id string, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issues[key(orgID, id)]; !ok {
		return domain.ErrNotFound
	}
	delete(m.issues, key(orgID, id))
	m.appendAudit(entry)
	return nil
}

func (m *mockStore) AppendAudit(_ context.Context, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendAudit(entry)
	return nil
}

func (m *mockStore) ListAudit(_ context.Context, orgID string, f audit.ListFilter) ([]audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []audit.Entry{}
	for _, e := range m.audit {
		if e.OrgID != orgID {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockStore) auditActions(entityID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.audit {
		if e.EntityID == entityID {
			out = append(out, e.Action)
		}
	}
	return out
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	mu        sync.Mutex
	published []struct {
		subject string
		data    []byte
	}
	subscribed   []string
	subCtxs      []context.Context
	publishErr   error
	subscribeErr error
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(ctx context.Context, subject string, _ messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.subscribeErr != nil {
		return nil, q.subscribeErr
	}
	q.subscribed = append(q.subscribed, subject)
	q.subCtxs = append(q.subCtxs, ctx)
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

// subjects returns the published subjects in order.
func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.published))
	for i, p := range q.published {
		out[i] = p.subject
	}
	return out
}

// last returns the payload of the most recent message on subject.
func (q *mockQueue) last(subject string) []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.published) - 1; i >= 0; i-- {
		if q.published[i].subject == subject {
			return q.published[i].data
		}
	}
	return nil
}

// mockFiles is an in-memory filestore.Store.
type mockFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockFiles() *mockFiles {
	return &mockFiles{objects: make(map[string][]byte)}
}

func (f *mockFiles) Put(_ context.Context, k string, r io.Reader, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects["mem://"+k] = data
	return "mem://" + k, nil
}

func (f *mockFiles) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *mockFiles) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, ref)
	return nil
}

func (f *mockFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// mockSummarizer returns a canned summary or error. When gate is set, each
// call signals entered and then holds until gate is closed.
type mockSummarizer struct {
	mu      sync.Mutex
	calls   []summarizer.Request
	err     error
	entered chan struct{}
	gate    chan struct{}
}

func (s *mockSummarizer) Summarize(_ context.Context, req summarizer.Request) (*evidence.Summary, error) {
	if s.gate != nil {
		s.entered <- struct{}{}
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &evidence.Summary{
		Summary:                    "Summary of " + req.Filename,
		KeyPoints:                  []string{"point"},
		DocumentType:               "report",
		QualityAssessment:          "high",
		VerificationRecommendation: "approve",
	}, nil
}

var errBoom = errors.New("boom")

const testOrg = "org-1"

var (
	admin    = user.Principal{ID: "A", Role: user.RoleAdmin, OrgID: testOrg}
	manager  = user.Principal{ID: "M", Role: user.RoleManager, OrgID: testOrg}
	manager2 = user.Principal{ID: "M2", Role: user.RoleManager, OrgID: testOrg}
	member   = user.Principal{ID: "U7", Role: user.RoleMember, OrgID: testOrg}
	member2  = user.Principal{ID: "U8", Role: user.RoleMember, OrgID: testOrg}
)

// seedUsers fills the directory with one user per test principal plus an
// inactive member "X".
func seedUsers(m *mockStore) {
	for _, u := range []user.User{
		{ID: "A", Name: "Ada", Email: "ada@example.com", Role: user.RoleAdmin, Active: true},
		{ID: "M", Name: "Mia", Email: "mia@example.com", Role: user.RoleManager, Active: true},
		{ID: "M2", Name: "Max", Email: "max@example.com", Role: user.RoleManager, Active: true},
		{ID: "U7", Name: "Uma", Email: "uma@example.com", Role: user.RoleMember, Active: true},
		{ID: "U8", Name: "Ugo", Email: "ugo@example.com", Role: user.RoleMember, Active: true},
		{ID: "X", Name: "Xia", Email: "xia@example.com", Role: user.RoleMember, Active: false},
	} {
		u.OrgID = testOrg
		m.users[key(testOrg, u.ID)] = u
	}
}

func principalByName(name string) user.Principal {
	switch name {
	case "admin":
		return admin
	case "manager":
		return manager
	case "manager2":
		return manager2
	case "member2":
		return member2
	default:
		return member
	}
}

type fixture struct {
	store *mockStore
	queue *mockQueue
	files *mockFiles
	users *UserService
	docs  *DocumentService
	tasks *TaskService
}

func newFixture() *fixture {
	store := newMockStore()
	seedUsers(store)
	queue := &mockQueue{}
	files := newMockFiles()
	users := NewUserService(store, nil, time.Minute)
	docs := NewDocumentService(store, files, queue, nil, 0)
	return &fixture{
		store: store,
		queue: queue,
		files: files,
		users: users,
		docs:  docs,
		tasks: NewTaskService(store, users, docs, queue, nil),
	}
}

// seedTask stores a task directly, bypassing authorization.
func (f *fixture) seedTask(t task.Task) *task.Task {
	if t.OrgID == "" {
		t.OrgID = testOrg
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if t.Title == "" {
		t.Title = "Task " + t.ID
	}
	t.Version = 1
	f.store.tasks[key(t.OrgID, t.ID)] = cloneTask(&t)
	return &t
}
