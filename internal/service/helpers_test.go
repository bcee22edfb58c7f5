package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/sakif/accountkeeper/internal/auth"
	"github.com/sakif/accountkeeper/internal/cipher"
	"github.com/sakif/accountkeeper/internal/logging"
	"github.com/sakif/accountkeeper/internal/metrics"
	"github.com/sakif/accountkeeper/internal/repository/sqlstore"
	"github.com/sakif/accountkeeper/internal/session"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

type sentMessage struct {
	To, Subject, Body string
}

// fakeSink records messages; set err to simulate a broken outbox.
type fakeSink struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSink) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to, subject, body})
	return nil
}

func (f *fakeSink) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no message was sent")
	return f.sent[len(f.sent)-1]
}

// linkParam extracts the value of param from the link in the message body.
func linkParam(t *testing.T, body, param string) string {
	t.Helper()
	i := strings.Index(body, param+"=")
	require.GreaterOrEqual(t, i, 0, "body has no %s: %q", param, body)
	return body[i+len(param)+1:]
}

var (
	testCipherOnce sync.Once
	testCipher     *cipher.AESCipher
)

// sharedCipher avoids deriving an argon2 key for every test.
func sharedCipher(t *testing.T) *cipher.AESCipher {
	t.Helper()
	testCipherOnce.Do(func() {
		c, err := cipher.New("test-passphrase", "test-salt")
		if err != nil {
			panic(err)
		}
		testCipher = c
	})
	return testCipher
}

type testEnv struct {
	svc     *AccountService
	db      *sqlstore.DB
	sink    *fakeSink
	tokens  *auth.TokenService
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()

	db, err := sqlstore.New(context.Background(), sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)

	o := Options{PublicURL: "http://localhost:8080", AnonLandingNode: "/public/welcome"}
	for _, fn := range opts {
		fn(&o)
	}

	env := &testEnv{
		db:      db,
		sink:    &fakeSink{},
		tokens:  tokens,
		metrics: metrics.New(nil),
	}
	env.svc = NewAccountService(Deps{
		Store:     db,
		Passwords: auth.NewPasswordServiceForTest(4),
		Tokens:    tokens,
		Cipher:    sharedCipher(t),
		Sink:      env.sink,
		Metrics:   env.metrics,
		Logger:    logging.Discard(),
		Options:   o,
	})
	return env
}

func validSignup(name string) SignupRequest {
	return SignupRequest{UserName: name, Password: "Passw0rd!", Email: name + "@x.com"}
}

// signupAndConfirm drives a user from NONE to ACTIVE through the emailed
// confirmation link.
func (e *testEnv) signupAndConfirm(t *testing.T, req SignupRequest) {
	t.Helper()
	ctx := context.Background()

	_, err := e.svc.Initiate(ctx, session.New(), req, "")
	require.NoError(t, err)

	code := linkParam(t, e.sink.last(t).Body, "signupCode")
	_, err = e.svc.Confirm(ctx, code)
	require.NoError(t, err)
}

// asUser returns a context carrying the identity a token issued right now
// for name would carry.
func (e *testEnv) asUser(t *testing.T, name string) context.Context {
	t.Helper()
	p, err := e.db.GetPrincipal(context.Background(), name)
	require.NoError(t, err)
	return auth.WithIdentity(context.Background(), identityOf(p))
}

func testFlowCount(e *testEnv, flow, outcome string) float64 {
	return testutil.ToFloat64(e.metrics.FlowCounter(flow, outcome))
}

var errBoom = errors.New("boom")
