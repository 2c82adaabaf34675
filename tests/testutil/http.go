package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestContext is a gin context wired to a response recorder, for calling a
// handler directly without an engine.
type TestContext struct {
	Context  *gin.Context
	Recorder *httptest.ResponseRecorder
}

// HTTPTestCase drives one handler call. Zero values mean GET / with no body.
type HTTPTestCase struct {
	Name           string
	Method         string
	Path           string
	Body           any
	Headers        map[string]string
	ExpectedStatus int

	// ExpectedBody is compared key by key against the top level of the
	// decoded JSON reply.
	ExpectedBody map[string]any
	Setup        func(t *testing.T, tc *TestContext)
	Validate     func(t *testing.T, tc *TestContext)
}

func RunHTTPTestCases(t *testing.T, handler gin.HandlerFunc, cases []HTTPTestCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) { RunHTTPTestCase(t, handler, tc) })
	}
}

func RunHTTPTestCase(t *testing.T, handler gin.HandlerFunc, tc HTTPTestCase) {
	t.Helper()

	method, path := tc.Method, tc.Path
	if method == "" {
		method = http.MethodGet
	}
	if path == "" {
		path = "/"
	}
	var body io.Reader
	if tc.Body != nil {
		body = ToJSONReader(t, tc.Body)
	}

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, path, body)
	if tc.Body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	for k, v := range tc.Headers {
		c.Request.Header.Set(k, v)
	}
	ctx := &TestContext{Context: c, Recorder: rec}

	if tc.Setup != nil {
		tc.Setup(t, ctx)
	}
	handler(c)

	if tc.ExpectedStatus != 0 {
		assert.Equal(t, tc.ExpectedStatus, rec.Code, "status code")
	}
	if tc.ExpectedBody != nil {
		got := JSONResponseAs[map[string]any](t, ctx)
		for key, want := range tc.ExpectedBody {
			assert.Equal(t, want, got[key], "body key %q", key)
		}
	}
	if tc.Validate != nil {
		tc.Validate(t, ctx)
	}
}

// JSONResponseAs decodes the recorded body into T.
func JSONResponseAs[T any](t *testing.T, tc *TestContext) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(tc.Recorder.Body.Bytes(), &out), "decode response: %s", tc.Recorder.Body.String())
	return out
}

type envelope struct {
	Success bool `json:"success"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// AssertSuccessResponse checks for a success envelope without an error.
func AssertSuccessResponse(t *testing.T, tc *TestContext) {
	t.Helper()
	env := JSONResponseAs[envelope](t, tc)
	assert.True(t, env.Success, "success flag")
	assert.Nil(t, env.Error, "unexpected error object")
}

// AssertErrorResponse checks for a failure envelope carrying code.
func AssertErrorResponse(t *testing.T, tc *TestContext, code string) {
	t.Helper()
	env := JSONResponseAs[envelope](t, tc)
	assert.False(t, env.Success, "success flag")
	require.NotNil(t, env.Error, "error object missing")
	assert.Equal(t, code, env.Error.Code)
}

func ToJSONReader(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}
