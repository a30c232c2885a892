package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/logging"
	"github.com/dmitrijs2005/timecapsule/internal/server/access"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/dmitrijs2005/timecapsule/internal/server/services"
)

const goodToken = "good-token"

var testRequester = access.Requester{ID: 7, Phone: "+15550007"}

type fakeUsers struct {
	register     func(context.Context, services.NewUser) (*models.User, error)
	login        func(context.Context, string, string) (*services.TokenPair, error)
	refresh      func(context.Context, string) (*services.TokenPair, error)
	authenticate func(context.Context, string) (access.Requester, error)
	get          func(context.Context, access.Requester, int64) (*models.User, error)
	update       func(context.Context, access.Requester, int64, models.UserPatch) (*models.User, error)
	del          func(context.Context, access.Requester, int64) error
}

func (f *fakeUsers) Register(ctx context.Context, in services.NewUser) (*models.User, error) {
	return f.register(ctx, in)
}
func (f *fakeUsers) Login(ctx context.Context, phone, password string) (*services.TokenPair, error) {
	return f.login(ctx, phone, password)
}
func (f *fakeUsers) RefreshToken(ctx context.Context, token string) (*services.TokenPair, error) {
	return f.refresh(ctx, token)
}
func (f *fakeUsers) Authenticate(ctx context.Context, token string) (access.Requester, error) {
	if f.authenticate != nil {
		return f.authenticate(ctx, token)
	}
	if token != goodToken {
		return access.Requester{}, common.ErrInvalidToken
	}
	return testRequester, nil
}
func (f *fakeUsers) Get(ctx context.Context, r access.Requester, id int64) (*models.User, error) {
	return f.get(ctx, r, id)
}
func (f *fakeUsers) Update(ctx context.Context, r access.Requester, id int64, p models.UserPatch) (*models.User, error) {
	return f.update(ctx, r, id, p)
}
func (f *fakeUsers) Delete(ctx context.Context, r access.Requester, id int64) error {
	return f.del(ctx, r, id)
}

type fakeCapsules struct {
	create func(context.Context, access.Requester, services.NewCapsule) (*models.Capsule, error)
	get    func(context.Context, access.Requester, int64) (*models.CapsuleView, error)
	update func(context.Context, access.Requester, int64, models.CapsulePatch) (*models.Capsule, error)
	del    func(context.Context, access.Requester, int64) error
}

func (f *fakeCapsules) Create(ctx context.Context, r access.Requester, in services.NewCapsule) (*models.Capsule, error) {
	return f.create(ctx, r, in)
}
func (f *fakeCapsules) Get(ctx context.Context, r access.Requester, id int64) (*models.CapsuleView, error) {
	return f.get(ctx, r, id)
}
func (f *fakeCapsules) Update(ctx context.Context, r access.Requester, id int64, p models.CapsulePatch) (*models.Capsule, error) {
	return f.update(ctx, r, id, p)
}
func (f *fakeCapsules) Delete(ctx context.Context, r access.Requester, id int64) error {
	return f.del(ctx, r, id)
}

type fakeMessages struct {
	create   func(context.Context, access.Requester, int64, services.MessageInput) (*models.Message, error)
	get      func(context.Context, access.Requester, int64, int64) (*models.Message, error)
	update   func(context.Context, access.Requester, int64, int64, services.MessageInput) (*models.Message, error)
	del      func(context.Context, access.Requester, int64, int64) error
	download func(context.Context, access.Requester, int64, int64) (*services.Attachment, error)
}

func (f *fakeMessages) Create(ctx context.Context, r access.Requester, c int64, in services.MessageInput) (*models.Message, error) {
	return f.create(ctx, r, c, in)
}
func (f *fakeMessages) Get(ctx context.Context, r access.Requester, c, m int64) (*models.Message, error) {
	return f.get(ctx, r, c, m)
}
func (f *fakeMessages) Update(ctx context.Context, r access.Requester, c, m int64, in services.MessageInput) (*models.Message, error) {
	return f.update(ctx, r, c, m, in)
}
func (f *fakeMessages) Delete(ctx context.Context, r access.Requester, c, m int64) error {
	return f.del(ctx, r, c, m)
}
func (f *fakeMessages) Download(ctx context.Context, r access.Requester, c, m int64) (*services.Attachment, error) {
	return f.download(ctx, r, c, m)
}

type testServer struct {
	users    *fakeUsers
	capsules *fakeCapsules
	messages *fakeMessages
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{users: &fakeUsers{}, capsules: &fakeCapsules{}, messages: &fakeMessages{}}
	s := NewHTTPServer("127.0.0.1:0", logging.Nop(), ts.users, ts.capsules, ts.messages, 0)
	ts.handler = s.NewRouter()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func authed(req *http.Request) *http.Request {
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+goodToken)
	return req
}
