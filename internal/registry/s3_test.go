package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

// memS3 is an in-memory S3 transport covering Head/Get/Put/ListObjectsV2
type memS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMockS3Store(t *testing.T, prefix string) (*S3Store, *memS3) {
	t.Helper()
	rt := &memS3{objects: make(map[string][]byte)}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return newS3Store(client, "models", prefix), rt
}

func empty(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}
}

func (m *memS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// path-style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range m.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>", k, len(m.objects[k]))
		}
		b.WriteString("</ListBucketResult>")
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(b.String())), Header: http.Header{"Content-Type": {"application/xml"}}}, nil
	}

	switch req.Method {
	case http.MethodHead:
		if body, ok := m.objects[key]; ok {
			resp := empty(http.StatusOK)
			resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
			return resp, nil
		}
		return empty(http.StatusNotFound), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		if _, exists := m.objects[key]; exists {
			return empty(http.StatusPreconditionFailed), nil
		}
		m.objects[key] = body
		resp := empty(http.StatusOK)
		resp.Header.Set("ETag", `"etag"`)
		return resp, nil
	case http.MethodGet:
		if body, ok := m.objects[key]; ok {
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body)), Header: http.Header{
				"Content-Length": {strconv.Itoa(len(body))},
				"Content-Type":   {"application/json"},
			}}, nil
		}
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)),
			Header:     http.Header{"Content-Type": {"application/xml"}},
		}, nil
	}
	return empty(http.StatusNotImplemented), nil
}

// decodeChunked unwraps an aws-chunked body: <hex>[;ext]\r\n<data>\r\n0\r\n...
func decodeChunked(b []byte) ([]byte, bool) {
	i := bytes.Index(b, []byte("\r\n"))
	if i <= 0 {
		return nil, false
	}
	head := string(b[:i])
	if j := strings.IndexByte(head, ';'); j >= 0 {
		head = head[:j]
	}
	size, err := strconv.ParseInt(head, 16, 64)
	if err != nil || int64(len(b)) < int64(i+2)+size {
		return nil, false
	}
	rest := b[i+2+int(size):]
	if !bytes.HasPrefix(rest, []byte("\r\n0")) {
		return nil, false
	}
	return b[i+2 : i+2+int(size)], true
}

func TestS3Store_PutGetList(t *testing.T) {
	s, mem := newMockS3Store(t, "demand/models")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "v1/model.json", []byte(`{"kind":"series"}`)))
	assert.Contains(t, mem.objects, "demand/models/v1/model.json")

	err := s.Put(ctx, "v1/model.json", []byte(`{}`))
	assert.ErrorIs(t, err, ErrExists)

	data, err := s.Get(ctx, "v1/model.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"series"}`, string(data))

	_, err = s.Get(ctx, "v9/model.json")
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1/model.json"}, keys)
}

func TestRegistry_OverS3(t *testing.T) {
	s, _ := newMockS3Store(t, "")
	r := newTestRegistry(t, s)
	r.uri = "s3://models"
	ctx := context.Background()

	artifact, err := r.Save(ctx, &contracts.ModelState{Kind: "series", Params: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, "s3://models/"+artifact.Version, artifact.URI)

	latest, err := New(s, "s3://models", zerolog.Nop()).Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, artifact.Version, latest.Version)

	state, err := r.Load(ctx, latest)
	require.NoError(t, err)
	assert.Equal(t, "series", state.Kind)
}
