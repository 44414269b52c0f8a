package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsa-judge/dsactl/pkg/models"
	"github.com/dsa-judge/dsactl/pkg/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL + "/api/v1")
	require.NoError(t, err)
	return client, server
}

func TestNewClient_RejectsBadScheme(t *testing.T) {
	_, err := NewClient("ftp://example.com")
	assert.Error(t, err)
}

func TestLogin_SendsFormAndKeepsRefreshCookie(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/authorize/token":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "alice", r.PostForm.Get("username"))
			assert.Equal(t, "secret", r.PostForm.Get("password"))
			http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r1", Path: "/"})
			json.NewEncoder(w).Encode(models.TokenResponse{
				AccessToken: "a1", TokenType: "bearer", UserID: "alice", Role: models.RoleStudent,
			})
		case "/api/v1/authorize/token/update":
			cookie, err := r.Cookie("refresh_token")
			if err != nil || cookie.Value != "r1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			io.WriteString(w, `"a2"`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	token, err := client.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "a1", token.AccessToken)
	assert.Equal(t, models.RoleStudent, token.Role)

	refreshed, err := client.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a2", refreshed)
	assert.NotEmpty(t, client.Cookies())
}

func TestParseRefreshedToken(t *testing.T) {
	for body, want := range map[string]string{
		`"tok"`:                   "tok",
		`{"access_token":"tok2"}`: "tok2",
		"tok3\n":                  "tok3",
	} {
		got, err := parseRefreshedToken([]byte(body))
		require.NoError(t, err, body)
		assert.Equal(t, want, got)
	}
	_, err := parseRefreshedToken([]byte(`{}`))
	assert.Error(t, err)
}

func TestBearerHeader(t *testing.T) {
	var auth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(models.User{UserID: "u1"})
	})

	_, err := client.Me(context.Background(), Credentials{Token: "abc", TokenType: "bearer"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", auth)

	_, err = client.Me(context.Background(), Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "", auth)
}

func TestAPIErrorDetail(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Token has expired"}`)
	})

	_, err := client.GetBatch(context.Background(), Credentials{Token: "x"}, 7)
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.True(t, apiErr.IsTokenExpired())
	assert.False(t, apiErr.IsAuthDenied())
}

func TestAPIErrorClassification(t *testing.T) {
	forbidden := newAPIError(http.StatusForbidden, []byte(`{"detail":"Not enough permissions"}`))
	assert.True(t, forbidden.IsAuthDenied())
	assert.False(t, forbidden.IsTokenExpired())

	invalid := newAPIError(http.StatusBadRequest, []byte(`{"detail":"Incorrect current password"}`))
	assert.True(t, invalid.IsValidation())
	assert.Equal(t, "Incorrect current password", invalid.Detail)

	list := newAPIError(http.StatusUnprocessableEntity, []byte(`{"detail":[{"loc":["body"],"msg":"x"}]}`))
	assert.True(t, strings.HasPrefix(list.Detail, "["))

	plain := newAPIError(http.StatusBadGateway, []byte("upstream down"))
	assert.Equal(t, "API error (status 502): upstream down", plain.Error())
}

func TestGetRetriesTransportFailureOnly(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.GetGrading(context.Background(), Credentials{Token: "x"}, 1)
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "HTTP status errors must not be retried")
}

func TestSubmit_Multipart(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/assignments/3/4/submit", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		assert.Equal(t, "main.c", files[0].Filename)
		json.NewEncoder(w).Encode(models.Submission{ID: 99, ResultID: models.ResultWaiting})
	})

	subm, err := client.Submit(context.Background(), Credentials{Token: "t"}, 3, 4, []UploadFile{
		{Name: "src/main.c", Content: strings.NewReader("int main(){}")},
		{Name: "util.h", Content: strings.NewReader("")},
	})
	require.NoError(t, err)
	assert.Equal(t, 99, subm.ID)
	assert.False(t, subm.IsTerminal())
}

func TestSubmit_NoFiles(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.Submit(context.Background(), Credentials{}, 1, 1, nil)
	assert.Error(t, err)
}

func TestDownloadProblem_UsesContentDisposition(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="lecture1_problem2.zip"`)
		w.Write([]byte("PK\x03\x04"))
	})

	blob, err := client.DownloadProblem(context.Background(), Credentials{Token: "t"}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "lecture1_problem2.zip", blob.Filename)
	assert.Equal(t, "application/zip", blob.ContentType)
	assert.Equal(t, []byte("PK\x03\x04"), blob.Data)
}

func TestFilenameFromDisposition(t *testing.T) {
	tests := map[string]string{
		"":                                  "",
		`attachment; filename="report.pdf"`: "report.pdf",
		`attachment; filename*=UTF-8''%E8%AA%B2%E9%A1%8C.zip`: "課題.zip",
		`attachment; filename="../../etc/passwd"`:             "passwd",
		`attachment; filename=broken"`:                        "broken",
	}
	for header, want := range tests {
		assert.Equal(t, want, FilenameFromDisposition(header), header)
	}
}

func TestCancelledContextIsNotWrappedAsAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListLectures(ctx, Credentials{})
	require.Error(t, err)
	_, isAPI := AsAPIError(err)
	assert.False(t, isAPI)
	assert.True(t, errors.Is(err, context.Canceled))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func resettingClient(t *testing.T, attempts *atomic.Int32) *Client {
	t.Helper()
	client, err := NewClientWithTransport("http://api.test/api/v1", roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts.Add(1)
		return nil, syscall.ECONNRESET
	}))
	require.NoError(t, err)
	client.SetRetryConfig(retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1})
	return client
}

func TestGetRetriesConnectionReset(t *testing.T) {
	var attempts atomic.Int32
	client := resettingClient(t, &attempts)

	_, err := client.GetGrading(context.Background(), Credentials{Token: "x"}, 1)
	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRefreshToken_SentOnceOnTransportFailure(t *testing.T) {
	var attempts atomic.Int32
	client := resettingClient(t, &attempts)

	_, err := client.RefreshToken(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ECONNRESET)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestWithoutRetry_SendsGetOnce(t *testing.T) {
	var attempts atomic.Int32
	client := resettingClient(t, &attempts)

	_, err := client.GetGrading(WithoutRetry(context.Background()), Credentials{Token: "x"}, 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestCookies_KeepPathAndExpiryBelowBaseURL(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/authorize/token":
			http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r1", Path: "/api/v1/authorize", Expires: expires})
			json.NewEncoder(w).Encode(models.TokenResponse{AccessToken: "a1", TokenType: "bearer"})
		case "/api/v1/authorize/token/update":
			cookie, err := r.Cookie("refresh_token")
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			io.WriteString(w, `"`+cookie.Value+`"`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	_, err := client.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)

	cookies := client.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "/api/v1/authorize", cookies[0].Path)
	assert.True(t, cookies[0].Expires.Equal(expires))

	// a fresh client restored from the saved cookies can still refresh
	restored, err := NewClient(server.URL + "/api/v1")
	require.NoError(t, err)
	restored.SetCookies(cookies)
	token, err := restored.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r1", token)

	// expiring the cookie removes it
	restored.SetCookies([]*http.Cookie{{Name: "refresh_token", Path: "/api/v1/authorize", MaxAge: -1}})
	assert.Empty(t, restored.Cookies())
	_, err = restored.RefreshToken(context.Background())
	assert.Error(t, err)
}
