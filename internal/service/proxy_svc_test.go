package service

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markket_cms_v1/internal/api/apierr"
	pkgnet "markket_cms_v1/pkg/net"
	"markket_cms_v1/pkg/strapi/strapitest"
)

func setupProxy(t *testing.T) (*ProxyService, *strapitest.Server) {
	srv := strapitest.NewServer(testAdminKey)
	t.Cleanup(srv.Close)

	dispatcher, err := pkgnet.NewDispatcher(pkgnet.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	return NewProxyService(dispatcher, srv.URL+"/", testAdminKey), srv
}

func TestProxyService_Passthrough(t *testing.T) {
	svc, srv := setupProxy(t)
	srv.Seed("articles", map[string]any{"documentId": "a1", "Title": "Hello"})

	res, err := svc.Forward(context.Background(), ForwardRequest{
		Method:   http.MethodGet,
		Path:     "/api/articles",
		RawQuery: "path=/api/articles&populate[]=Tags",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, string(res.Body), `"Hello"`)

	calls := srv.Calls(http.MethodGet)
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/articles", calls[0].Path)
	assert.Equal(t, "populate[]=Tags", calls[0].RawQuery)
	assert.Equal(t, "Bearer "+testAdminKey, calls[0].Auth)
}

func TestProxyService_RelaysUpstreamStatus(t *testing.T) {
	svc, _ := setupProxy(t)

	res, err := svc.Forward(context.Background(), ForwardRequest{Method: http.MethodGet, Path: "api/articles/missing"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Contains(t, string(res.Body), `"Not Found"`)
}

func TestProxyService_JSONBody(t *testing.T) {
	svc, srv := setupProxy(t)

	res, err := svc.Forward(context.Background(), ForwardRequest{
		Method:      http.MethodPost,
		Path:        "/api/articles",
		ContentType: "text/plain",
		Body:        strings.NewReader(`{"data":{"Title":"x"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.Status)

	posts := srv.Calls(http.MethodPost)
	require.Len(t, posts, 1)
	assert.Equal(t, "application/json", posts[0].ContentType)
	assert.JSONEq(t, `{"data":{"Title":"x"}}`, string(posts[0].Body))
}

func TestProxyService_InvalidJSONBody(t *testing.T) {
	svc, srv := setupProxy(t)

	_, err := svc.Forward(context.Background(), ForwardRequest{
		Method: http.MethodPost,
		Path:   "/api/articles",
		Body:   strings.NewReader(`{not json`),
	})
	e := requireKind(t, err, apierr.KindProxyError)
	assert.Equal(t, "Internal Server Error", e.Body["error"])
	assert.Empty(t, srv.Calls(""))
}

func TestProxyService_GetCarriesNoBody(t *testing.T) {
	svc, srv := setupProxy(t)

	_, err := svc.Forward(context.Background(), ForwardRequest{
		Method: http.MethodGet,
		Path:   "/api/articles",
		Body:   strings.NewReader(`{"ignored":true}`),
	})
	require.NoError(t, err)
	calls := srv.Calls(http.MethodGet)
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Body)
	assert.Empty(t, calls[0].ContentType)
}

func TestProxyService_MultipartStreamed(t *testing.T) {
	svc, srv := setupProxy(t)
	srv.Handle("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"logo.png"}]`))
	})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "logo.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte{0x89, 'P', 'N', 'G', 0x00, 0xff})
	require.NoError(t, mw.Close())
	raw := append([]byte(nil), buf.Bytes()...)

	res, err := svc.Forward(context.Background(), ForwardRequest{
		Method:      http.MethodPost,
		Path:        "/api/upload",
		ContentType: mw.FormDataContentType(),
		Body:        &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)

	posts := srv.Calls(http.MethodPost)
	require.Len(t, posts, 1)
	assert.Equal(t, mw.FormDataContentType(), posts[0].ContentType, "boundary 必须保留")
	assert.Equal(t, raw, posts[0].Body)
}

func TestProxyService_NonJSONResponse(t *testing.T) {
	svc, srv := setupProxy(t)
	srv.Handle("/api/html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})

	_, err := svc.Forward(context.Background(), ForwardRequest{Method: http.MethodGet, Path: "/api/html"})
	requireKind(t, err, apierr.KindProxyError)
}

func TestProxyService_EmptyResponse(t *testing.T) {
	svc, srv := setupProxy(t)
	srv.Seed("articles", map[string]any{"documentId": "a1"})

	res, err := svc.Forward(context.Background(), ForwardRequest{Method: http.MethodDelete, Path: "/api/articles/a1"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.Status)
	assert.Empty(t, res.Body)
}

func TestProxyService_MissingPath(t *testing.T) {
	svc, _ := setupProxy(t)

	_, err := svc.Forward(context.Background(), ForwardRequest{Method: http.MethodGet, Path: "  "})
	e := requireKind(t, err, apierr.KindMissingPath)
	assert.Equal(t, http.StatusBadRequest, e.Status)

	_, err = svc.Forward(context.Background(), ForwardRequest{Method: http.MethodGet, Path: "/?populate=*"})
	requireKind(t, err, apierr.KindMissingPath)
}

func TestProxyService_PathWithQuery(t *testing.T) {
	svc, srv := setupProxy(t)
	srv.Seed("articles", map[string]any{"documentId": "a1"})

	// path 参数本身带查询串时与其余参数合并，不产生第二个 ?
	res, err := svc.Forward(context.Background(), ForwardRequest{
		Method:   http.MethodGet,
		Path:     "/api/articles?populate=*#top",
		RawQuery: "path=%2Fapi%2Farticles%3Fpopulate%3D*&sort=id:desc",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)

	calls := srv.Calls(http.MethodGet)
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/articles", calls[0].Path)
	assert.Equal(t, "populate=*&sort=id:desc", calls[0].RawQuery)
	assert.NotContains(t, calls[0].RawQuery, "?")
}

func TestSplitProxyPath(t *testing.T) {
	tests := []struct {
		raw, path, query string
	}{
		{"/api/articles", "api/articles", ""},
		{"api/articles?populate=*", "api/articles", "populate=*"},
		{"/api/articles?a=1?b=2", "api/articles", "a=1?b=2"},
		{"/api/articles#frag", "api/articles", ""},
		{" /?x=1 ", "", "x=1"},
	}
	for _, tt := range tests {
		path, query := splitProxyPath(tt.raw)
		assert.Equal(t, tt.path, path, tt.raw)
		assert.Equal(t, tt.query, query, tt.raw)
	}
}

func TestProxyService_UpstreamDown(t *testing.T) {
	svc, srv := setupProxy(t)
	srv.Close()

	_, err := svc.Forward(context.Background(), ForwardRequest{Method: http.MethodGet, Path: "/api/articles"})
	requireKind(t, err, apierr.KindProxyError)
}

func TestStripQueryParam(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"path=/api/x", ""},
		{"a=1&path=/api/x&b=2", "a=1&b=2"},
		{"populate%5B%5D=Tags&path=%2Fapi%2Fx", "populate%5B%5D=Tags"},
		{"%70ath=/x&sort=id:desc", "sort=id:desc"},
		{"b=2&a=1", "b=2&a=1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripQueryParam(tt.raw, "path"), tt.raw)
	}
}
