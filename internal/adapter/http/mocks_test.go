package http_test

import (
	"bytes"
	"context"
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
)

var (
	_ database.Store     = (*mockStore)(nil)
	_ messagequeue.Queue = (*mockQueue)(nil)
	_ filestore.Store    = (*mockFiles)(nil)
)

// mockStore is an in-memory database.Store with compare-and-swap updates.
type mockStore struct {
	mu     sync.Mutex
	tasks  map[string]task.Task
	users  map[string]user.User
	issues map[string]issue.Issue
	audit  []audit.Entry
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
	return out, nil
}

func (m *mockStore) UpdateTask(_ context.Context, t *task.Task, entry *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[key(t.OrgID, t.ID)]
	if !ok || cur.Version != t.Version {
		return fmt.Errorf("update task %s: %w", t.ID, domain.ErrConflict)
	}
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
		}
	}
	return st, nil
}

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[key(u.OrgID, u.ID)] = *u
	return nil
}

func (m *mockStore) GetUser(_ context.Context, orgID, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	slices.SortFunc(out, func(a, b user.User) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
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
		out = append(out, e)
	}
	return out, nil
}

// mockQueue records published messages.
type mockQueue struct {
	mu        sync.Mutex
	published []string
}

func (q *mockQueue) Publish(_ context.Context, subject string, _ []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, subject)
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

// mockFiles is an in-memory filestore.Store.
type mockFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *mockFiles) Put(_ context.Context, k string, r io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
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
