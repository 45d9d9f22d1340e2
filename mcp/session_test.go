package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	responses     []Response
	notifications []Notification
	requests      []Request
}

func (f *fakeSender) SendResponse(r Response) error         { f.responses = append(f.responses, r); return nil }
func (f *fakeSender) SendNotification(n Notification) error { f.notifications = append(f.notifications, n); return nil }
func (f *fakeSender) SendRequest(r Request) error            { f.requests = append(f.requests, r); return nil }

type fakeSink struct {
	result SamplingResult
	err    error
	called int
}

func (f *fakeSink) CreateMessage(ctx context.Context, params SamplingParams) (SamplingResult, error) {
	f.called++
	return f.result, f.err
}

func TestSessionInitializationLifecycle(t *testing.T) {
	sess := NewSession("s1", RequestContext{}, &fakeSender{}, nil)
	assert.False(t, sess.IsInitialized())

	sess.MarkHandshakeComplete(ProtocolVersion, ClientInfo{Name: "test-client", Version: "1.0"}, nil)
	assert.False(t, sess.IsInitialized(), "handshake completion alone must not mark initialized")
	assert.Equal(t, ProtocolVersion, sess.ProtocolVersion())
	assert.Equal(t, "test-client", sess.ClientInfo().Name)

	sess.MarkInitialized()
	assert.True(t, sess.IsInitialized())
}

func TestSessionWithRequestContextCopiesRatherThanMutates(t *testing.T) {
	original := NewRequestContext("http", "/mcp", "tools/call", nil, nil, nil)
	sess := NewSession("s1", original, &fakeSender{}, nil)

	updated := NewRequestContext("http", "/mcp", "tools/list", map[string]string{"X-Trace": "abc"}, nil, nil)
	cp := sess.WithRequestContext(updated)

	assert.Equal(t, "tools/call", sess.RequestContext().Method, "original session must be untouched")
	assert.Equal(t, "tools/list", cp.RequestContext().Method)
	assert.Equal(t, sess.ID, cp.ID)
}

func TestSessionSetRequestContextMutatesInPlace(t *testing.T) {
	sess := NewSession("s1", RequestContext{Method: "initialize"}, &fakeSender{}, nil)
	sess.SetRequestContext(RequestContext{Method: "tools/call"})
	assert.Equal(t, "tools/call", sess.RequestContext().Method)
}

func TestSessionSetSenderReplacesSender(t *testing.T) {
	first := &fakeSender{}
	second := &fakeSender{}
	sess := NewSession("s1", RequestContext{}, first, nil)

	sess.SetSender(second)
	assert.Same(t, second, sess.Sender())
}

func TestSessionSecurityContextRoundTrip(t *testing.T) {
	sess := NewSession("s1", RequestContext{}, &fakeSender{}, nil)
	assert.Nil(t, sess.SecurityContext())

	sess.SetSecurityContext("some-principal")
	assert.Equal(t, "some-principal", sess.SecurityContext())
}

func TestSessionSampleWithoutSinkFails(t *testing.T) {
	sess := NewSession("s1", RequestContext{}, &fakeSender{}, nil)

	_, err := sess.Sample(context.Background(), SamplingParams{
		Messages: []SamplingMessage{{Role: "user", Content: SamplingContent{Type: "text", Text: "hi"}}},
	})
	require.Error(t, err)
	mcpErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrSamplingUnsupported.Code, mcpErr.Code)
}

func TestSessionSampleValidatesBeforeCallingSink(t *testing.T) {
	sink := &fakeSink{}
	sess := NewSession("s1", RequestContext{}, &fakeSender{}, sink)

	_, err := sess.Sample(context.Background(), SamplingParams{})
	require.Error(t, err)
	assert.Equal(t, 0, sink.called, "sink must not be invoked when params fail validation")
}

func TestSessionSampleDelegatesToSink(t *testing.T) {
	sink := &fakeSink{result: SamplingResult{Role: "assistant", Content: SamplingContent{Type: "text", Text: "summary"}}}
	sess := NewSession("s1", RequestContext{}, &fakeSender{}, sink)

	result, err := sess.Sample(context.Background(), SamplingParams{
		Messages: []SamplingMessage{{Role: "user", Content: SamplingContent{Type: "text", Text: "summarize this"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.called)
	assert.Equal(t, "summary", result.Content.Text)
}

func TestValidateSamplingParamsRejectsEmptyMessages(t *testing.T) {
	err := ValidateSamplingParams(SamplingParams{})
	require.Error(t, err)
}

func TestValidateSamplingParamsRejectsBadRole(t *testing.T) {
	err := ValidateSamplingParams(SamplingParams{
		Messages: []SamplingMessage{{Role: "system", Content: SamplingContent{Type: "text", Text: "x"}}},
	})
	require.Error(t, err)
}

func TestValidateSamplingParamsRejectsIncompleteImage(t *testing.T) {
	err := ValidateSamplingParams(SamplingParams{
		Messages: []SamplingMessage{{Role: "user", Content: SamplingContent{Type: "image", Data: "abc"}}},
	})
	require.Error(t, err, "image content missing mimeType must fail")
}

func TestValidateSamplingParamsRejectsNonPositiveMaxTokens(t *testing.T) {
	zero := 0
	err := ValidateSamplingParams(SamplingParams{
		Messages:  []SamplingMessage{{Role: "user", Content: SamplingContent{Type: "text", Text: "x"}}},
		MaxTokens: &zero,
	})
	require.Error(t, err)
}

func TestValidateSamplingParamsAcceptsWellFormedParams(t *testing.T) {
	max := 100
	err := ValidateSamplingParams(SamplingParams{
		Messages:       []SamplingMessage{{Role: "user", Content: SamplingContent{Type: "text", Text: "x"}}},
		IncludeContext: IncludeContextThisServer,
		MaxTokens:      &max,
	})
	assert.NoError(t, err)
}

func TestHasSamplingSinkReflectsAttachment(t *testing.T) {
	sess := NewSession("s1", RequestContext{}, &fakeSender{}, nil)
	assert.False(t, sess.HasSamplingSink())

	sess.SetSamplingSink(&fakeSink{})
	assert.True(t, sess.HasSamplingSink())

	sess.SetSamplingSink(nil)
	assert.False(t, sess.HasSamplingSink())
}

func TestSessionFromContextRoundTrip(t *testing.T) {
	sess := NewSession("s1", RequestContext{}, &fakeSender{}, nil)
	ctx := WithSession(context.Background(), sess)

	got, ok := SessionFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, sess, got)

	_, ok = SessionFromContext(context.Background())
	assert.False(t, ok)
}
