package blobdraft

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
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory subset of the S3 REST API: path-style
// Get/Put/Delete and ListObjectsV2 with single-key pages.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return respond(http.StatusInternalServerError, errorXML("InternalError")), nil
	}

	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix"), req.URL.Query().Get("continuation-token")), nil
	}

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			body = decodeChunked(body)
		}
		f.objects[key] = body
		return respond(http.StatusOK, ""), nil
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, errorXML("NoSuchKey")), nil
		}
		resp := respond(http.StatusOK, string(body))
		resp.Header.Set("Content-Type", "application/json")
		resp.Header.Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		return resp, nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, ""), nil
	}
	return respond(http.StatusNotImplemented, ""), nil
}

func (f *fakeS3) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	if start+1 < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", start+1)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	if start < len(keys) {
		k := keys[start]
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
	}
	b.WriteString("</ListBucketResult>")

	resp := respond(http.StatusOK, b.String())
	resp.Header.Set("Content-Type", "application/xml")
	return resp
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        http.Header{"Content-Length": {strconv.Itoa(len(body))}},
	}
}

func errorXML(code string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

// decodeChunked strips aws-chunked framing: <hex size>\r\n<data>\r\n ... 0\r\n<trailers>.
func decodeChunked(b []byte) []byte {
	var out bytes.Buffer
	for len(b) > 0 {
		line, rest, ok := bytes.Cut(b, []byte("\r\n"))
		if !ok {
			break
		}
		sizeHex, _, _ := bytes.Cut(line, []byte(";"))
		size, err := strconv.ParseInt(string(sizeHex), 16, 64)
		if err != nil || size == 0 || int64(len(rest)) < size {
			break
		}
		out.Write(rest[:size])
		b = bytes.TrimPrefix(rest[size:], []byte("\r\n"))
	}
	return out.Bytes()
}

func newMockStore(t *testing.T, prefix string) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.RetryMaxAttempts = 1
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &Store{client: client, bucket: "drafts", prefix: prefix}, fake
}
