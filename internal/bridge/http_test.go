package bridge

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBridge(t *testing.T) *Bridge {
	t.Helper()
	dir := t.TempDir()
	b := NewBridge(BridgeConfig{
		ServerCommand:       echoServerCommand,
		ServerArgs:          echoServerArgs,
		DefaultSandboxScope: dir,
		HandshakeTimeout:    5 * time.Second,
	}, zerolog.New(os.Stderr))
	t.Cleanup(b.manager.Shutdown)
	return b
}

func TestHTTP_MalformedInitializeRejectsWithoutSessionHeader(t *testing.T) {
	b := testBridge(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"capabilities":{},"clientInfo":{"name":"x","version":"1"}}}`

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":-32602`)
	assert.Contains(t, rec.Body.String(), "protocolVersion")
	assert.Empty(t, rec.Header().Get(sessionHeader))
}

func TestHTTP_ValidInitializeSetsSessionHeader(t *testing.T) {
	b := testBridge(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(sessionHeader))
}

func TestHTTP_SSEWithoutSessionHeaderReturns404(t *testing.T) {
	b := testBridge(t)
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_SSEWithUnknownSessionReturns404(t *testing.T) {
	b := testBridge(t)
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(sessionHeader, "00000000-0000-0000-0000-000000000000")
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_PostWithUnknownSessionReturns404(t *testing.T) {
	b := testBridge(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	req.Header.Set(sessionHeader, "00000000-0000-0000-0000-000000000000")
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_OtherMethodsReturn404(t *testing.T) {
	b := testBridge(t)
	req := httptest.NewRequest(http.MethodPut, "/mcp", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_ForwardedRequestAfterLockReachesSubprocess(t *testing.T) {
	b := testBridge(t)

	initBody := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(initBody))
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)
	sessionID := rec.Header().Get(sessionHeader)
	require.NotEmpty(t, sessionID)

	session, ok := b.manager.Get(sessionID)
	require.True(t, ok)
	root := t.TempDir()
	rootsResult := `{"jsonrpc":"2.0","id":"` + session.rootsRequestID + `","result":{"roots":[{"uri":"file://` + root + `"}]}}`
	rreq := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(rootsResult))
	rreq.Header.Set(sessionHeader, sessionID)
	rrec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rrec, rreq)
	assert.Equal(t, http.StatusOK, rrec.Code)
	assert.Equal(t, Locked, session.State())

	callBody := `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`
	creq := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(callBody))
	creq.Header.Set(sessionHeader, sessionID)
	crec := httptest.NewRecorder()
	b.Handler().ServeHTTP(crec, creq)
	assert.Equal(t, http.StatusOK, crec.Code)
	assert.Contains(t, crec.Body.String(), "tools/list")
}
