package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/casedesk/pkg/audit"
	"github.com/arbiterhq/casedesk/pkg/auth"
	"github.com/arbiterhq/casedesk/pkg/cases"
	"github.com/arbiterhq/casedesk/pkg/contextkeys"
	"github.com/arbiterhq/casedesk/pkg/documents"
	"github.com/arbiterhq/casedesk/pkg/httputil"
	"github.com/arbiterhq/casedesk/pkg/institutions"
	"github.com/arbiterhq/casedesk/pkg/storage"
	"github.com/arbiterhq/casedesk/pkg/store"
	"github.com/arbiterhq/casedesk/pkg/users"
)

func notFoundErr(op string) error {
	return store.NewError(op, store.KindNotFound, io.EOF)
}

// newTestRouter registers the handlers on a router that authenticates
// every request as the given principal
func newTestRouter(actor *auth.Principal, registrars ...RouteRegistrar) http.Handler {
	router := mux.NewRouter()
	for _, reg := range registrars {
		reg.RegisterRoutes(router)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor != nil {
			ctx := contextkeys.WithAuth(r.Context(), &auth.AuthContext{Principal: actor})
			r = r.WithContext(ctx)
		}
		router.ServeHTTP(w, r)
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httputil.Envelope {
	t.Helper()
	var env httputil.Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dest))
}

func adminPrincipal() *auth.Principal {
	return &auth.Principal{ID: "admin-1", Role: auth.RoleAdmin, IsActive: true}
}

func institutionPrincipal(institutionID int64) *auth.Principal {
	return &auth.Principal{ID: "inst-1", Role: auth.RoleInstitution, InstitutionID: &institutionID, IsActive: true}
}

// fakeInstitutionService is an in-memory institutions.Service
type fakeInstitutionService struct {
	institutions  map[int64]*institutions.Institution
	members       []*institutions.Member
	assignments   map[int64]*institutions.Assignment
	assignmentErr error
	nextID        int64
}

func newFakeInstitutionService() *fakeInstitutionService {
	return &fakeInstitutionService{
		institutions: make(map[int64]*institutions.Institution),
		assignments:  make(map[int64]*institutions.Assignment),
	}
}

func (f *fakeInstitutionService) CreateInstitution(ctx context.Context, inst *institutions.Institution) error {
	f.nextID++
	inst.ID = f.nextID
	inst.CreatedAt = time.Now()
	f.institutions[inst.ID] = inst
	return nil
}

func (f *fakeInstitutionService) GetInstitution(ctx context.Context, id int64) (*institutions.Institution, error) {
	if inst, ok := f.institutions[id]; ok {
		return inst, nil
	}
	return nil, notFoundErr("institutions.Get")
}

func (f *fakeInstitutionService) ListInstitutions(ctx context.Context) ([]*institutions.Institution, error) {
	var list []*institutions.Institution
	for _, inst := range f.institutions {
		list = append(list, inst)
	}
	return list, nil
}

func (f *fakeInstitutionService) UpdateInstitution(ctx context.Context, inst *institutions.Institution) error {
	if _, ok := f.institutions[inst.ID]; !ok {
		return notFoundErr("institutions.Update")
	}
	f.institutions[inst.ID] = inst
	return nil
}

func (f *fakeInstitutionService) DeleteInstitution(ctx context.Context, id int64) error {
	if _, ok := f.institutions[id]; !ok {
		return notFoundErr("institutions.Delete")
	}
	delete(f.institutions, id)
	return nil
}

func (f *fakeInstitutionService) ListMembers(ctx context.Context, institutionID int64, role auth.Role) ([]*institutions.Member, error) {
	var list []*institutions.Member
	for _, m := range f.members {
		if m.InstitutionID != institutionID {
			continue
		}
		if role != "" && m.Role != role {
			continue
		}
		list = append(list, m)
	}
	return list, nil
}

func (f *fakeInstitutionService) CreateAssignment(ctx context.Context, assignment *institutions.Assignment) error {
	if f.assignmentErr != nil {
		return f.assignmentErr
	}
	f.nextID++
	assignment.ID = f.nextID
	f.assignments[assignment.ID] = assignment
	return nil
}

func (f *fakeInstitutionService) ListAssignments(ctx context.Context, institutionID int64) ([]*institutions.Assignment, error) {
	var list []*institutions.Assignment
	for _, a := range f.assignments {
		if a.InstitutionID == institutionID {
			list = append(list, a)
		}
	}
	return list, nil
}

func (f *fakeInstitutionService) DeleteAssignment(ctx context.Context, id, institutionID int64) error {
	if a, ok := f.assignments[id]; ok && a.InstitutionID == institutionID {
		delete(f.assignments, id)
		return nil
	}
	return notFoundErr("institutions.DeleteAssignment")
}

// fakeUserRepo is an in-memory users.Repository
type fakeUserRepo struct {
	profiles map[string]*users.Profile
	mirrored map[string]auth.Role
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		profiles: make(map[string]*users.Profile),
		mirrored: make(map[string]auth.Role),
	}
}

func (f *fakeUserRepo) CreateProfile(ctx context.Context, profile *users.Profile) error {
	if profile.Role == "" {
		profile.Role = auth.RoleUser
	}
	profile.IsActive = true
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeUserRepo) GetProfile(ctx context.Context, id string) (*users.Profile, error) {
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	return nil, notFoundErr("users.GetProfile")
}

func (f *fakeUserRepo) GetProfileByEmail(ctx context.Context, email string) (*users.Profile, error) {
	for _, p := range f.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, notFoundErr("users.GetProfileByEmail")
}

func (f *fakeUserRepo) ListProfiles(ctx context.Context, institutionID *int64) ([]*users.Profile, error) {
	var list []*users.Profile
	for _, p := range f.profiles {
		if institutionID != nil && (p.InstitutionID == nil || *p.InstitutionID != *institutionID) {
			continue
		}
		list = append(list, p)
	}
	return list, nil
}

func (f *fakeUserRepo) UpdateProfile(ctx context.Context, profile *users.Profile) error {
	if _, ok := f.profiles[profile.ID]; !ok {
		return notFoundErr("users.UpdateProfile")
	}
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeUserRepo) UpdateRole(ctx context.Context, id string, role auth.Role) error {
	p, ok := f.profiles[id]
	if !ok {
		return notFoundErr("users.UpdateRole")
	}
	p.Role = role
	return nil
}

func (f *fakeUserRepo) DeleteProfile(ctx context.Context, id string) error {
	if _, ok := f.profiles[id]; !ok {
		return notFoundErr("users.DeleteProfile")
	}
	delete(f.profiles, id)
	return nil
}

func (f *fakeUserRepo) TouchLastLogin(ctx context.Context, id string) error { return nil }

func (f *fakeUserRepo) UpsertMirroredRole(ctx context.Context, userID string, role auth.Role) error {
	f.mirrored[userID] = role
	return nil
}

func (f *fakeUserRepo) ListMirroredRoles(ctx context.Context) (map[string]auth.Role, error) {
	return f.mirrored, nil
}

// fakeCaseService is an in-memory cases.Service
type fakeCaseService struct {
	cases  map[int64]*cases.Case
	nextID int64
}

func newFakeCaseService() *fakeCaseService {
	return &fakeCaseService{cases: make(map[int64]*cases.Case)}
}

func (f *fakeCaseService) CreateCase(ctx context.Context, c *cases.Case) error {
	if c.Status == "" {
		c.Status = cases.StatusOpen
	}
	f.nextID++
	c.ID = f.nextID
	f.cases[c.ID] = c
	return nil
}

func (f *fakeCaseService) GetCase(ctx context.Context, id int64) (*cases.Case, error) {
	if c, ok := f.cases[id]; ok {
		return c, nil
	}
	return nil, notFoundErr("cases.Get")
}

func (f *fakeCaseService) ListCases(ctx context.Context, institutionID *int64, status cases.Status) ([]*cases.Case, error) {
	var list []*cases.Case
	for _, c := range f.cases {
		if institutionID != nil && c.InstitutionID != *institutionID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		list = append(list, c)
	}
	return list, nil
}

func (f *fakeCaseService) UpdateCase(ctx context.Context, c *cases.Case) error {
	existing, ok := f.cases[c.ID]
	if !ok {
		return notFoundErr("cases.Update")
	}
	c.Status = existing.Status
	f.cases[c.ID] = c
	return nil
}

func (f *fakeCaseService) UpdateStatus(ctx context.Context, id int64, status cases.Status) error {
	c, ok := f.cases[id]
	if !ok {
		return notFoundErr("cases.UpdateStatus")
	}
	c.Status = status
	return nil
}

func (f *fakeCaseService) DeleteCase(ctx context.Context, id int64) error {
	if _, ok := f.cases[id]; !ok {
		return notFoundErr("cases.Delete")
	}
	delete(f.cases, id)
	return nil
}

func (f *fakeCaseService) CountByStatus(ctx context.Context, institutionID *int64) ([]cases.StatusCount, error) {
	counts := make(map[cases.Status]int64)
	for _, c := range f.cases {
		if institutionID != nil && c.InstitutionID != *institutionID {
			continue
		}
		counts[c.Status]++
	}
	var out []cases.StatusCount
	for status, count := range counts {
		out = append(out, cases.StatusCount{Status: status, Count: count})
	}
	return out, nil
}

// fakeAuditRecorder is an in-memory audit.Recorder
type fakeAuditRecorder struct {
	events        []*audit.Event
	notifications map[int64]*audit.RoleChangeNotification
	nextID        int64
}

func newFakeAuditRecorder() *fakeAuditRecorder {
	return &fakeAuditRecorder{notifications: make(map[int64]*audit.RoleChangeNotification)}
}

func (f *fakeAuditRecorder) RecordEvent(ctx context.Context, event *audit.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditRecorder) RecordRoleChange(ctx context.Context, n *audit.RoleChangeNotification) error {
	f.nextID++
	n.ID = f.nextID
	f.notifications[n.ID] = n
	return nil
}

func (f *fakeAuditRecorder) ListRoleChanges(ctx context.Context, userID string, unreadOnly bool) ([]*audit.RoleChangeNotification, error) {
	var list []*audit.RoleChangeNotification
	for _, n := range f.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		list = append(list, n)
	}
	return list, nil
}

func (f *fakeAuditRecorder) MarkNotificationRead(ctx context.Context, id int64, userID string) error {
	n, ok := f.notifications[id]
	if !ok || n.UserID != userID {
		return notFoundErr("audit.MarkNotificationRead")
	}
	n.Read = true
	return nil
}

// fakeDocRepo is an in-memory documents.Repository
type fakeDocRepo struct {
	docs   map[int64]*documents.Document
	nextID int64
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[int64]*documents.Document)}
}

func (f *fakeDocRepo) CreateDocument(ctx context.Context, doc *documents.Document) error {
	f.nextID++
	doc.ID = f.nextID
	doc.CreatedAt = time.Now()
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocRepo) GetDocument(ctx context.Context, id int64) (*documents.Document, error) {
	if d, ok := f.docs[id]; ok {
		return d, nil
	}
	return nil, notFoundErr("documents.Get")
}

func (f *fakeDocRepo) ListDocuments(ctx context.Context, caseID *int64, uploadedBy string) ([]*documents.Document, error) {
	var list []*documents.Document
	for _, d := range f.docs {
		if caseID != nil && (d.CaseID == nil || *d.CaseID != *caseID) {
			continue
		}
		if uploadedBy != "" && d.UploadedBy != uploadedBy {
			continue
		}
		list = append(list, d)
	}
	return list, nil
}

func (f *fakeDocRepo) DeleteDocument(ctx context.Context, id int64) error {
	if _, ok := f.docs[id]; !ok {
		return notFoundErr("documents.Delete")
	}
	delete(f.docs, id)
	return nil
}

// fakeObjStore is an in-memory storage.ObjectStore
type fakeObjStore struct {
	buckets map[string]bool
	objects map[string][]byte
}

func newFakeObjStore() *fakeObjStore {
	return &fakeObjStore{
		buckets: make(map[string]bool),
		objects: make(map[string][]byte),
	}
}

func (f *fakeObjStore) EnsureBucket(ctx context.Context, bucket string) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjStore) ListBuckets(ctx context.Context) ([]storage.BucketInfo, error) {
	var list []storage.BucketInfo
	for name := range f.buckets {
		list = append(list, storage.BucketInfo{Name: name})
	}
	return list, nil
}

func (f *fakeObjStore) PutObject(ctx context.Context, bucket, key string, content io.Reader, contentType string) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeObjStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if data, ok := f.objects[bucket+"/"+key]; ok {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil, storage.ErrObjectNotFound
}

func (f *fakeObjStore) DeleteObject(ctx context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeObjStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, ok := f.objects[bucket+"/"+key]
	return ok, nil
}

func (f *fakeObjStore) PresignDownload(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	return "https://store.test/" + bucket + "/" + key + "?sig=test", nil
}

func (f *fakeObjStore) PresignUpload(ctx context.Context, bucket, key string, scope storage.CredentialScope, expires time.Duration) (string, error) {
	return "https://store.test/" + bucket + "/" + key + "?upload=1", nil
}
