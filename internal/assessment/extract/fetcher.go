package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	commonerrors "social-support-workers/internal/common/errors"
	commonhttp "social-support-workers/internal/common/http"
)

// Source kinds a reference can resolve from.
const (
	SourceURL     = "url"
	SourceDataURI = "data_uri"
	SourceRaw     = "raw"
)

var (
	ErrDocumentTooLarge = errors.New("DOCUMENT_TOO_LARGE")
	ErrUnexpectedStatus = errors.New("UNEXPECTED_STATUS")
	ErrMalformedDataURI = errors.New("MALFORMED_DATA_URI")
)

// Payload is a resolved document reference.
type Payload struct {
	Data      []byte
	MediaType string
	Source    string
	// Name is the URL path for fetched documents, empty otherwise.
	Name string
}

type FetcherOptions struct {
	Timeout   time.Duration
	MaxBytes  int64
	RateLimit float64
	RateBurst int
}

// Fetcher resolves document references into raw bytes.
type Fetcher struct {
	client   *commonhttp.Client
	timeout  time.Duration
	maxBytes int64
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Fetcher{
		client: commonhttp.NewClient(commonhttp.Options{
			ConnectTimeout: opts.Timeout,
			ReadTimeout:    opts.Timeout,
			RateLimit:      opts.RateLimit,
			RateBurst:      opts.RateBurst,
		}),
		timeout:  opts.Timeout,
		maxBytes: opts.MaxBytes,
	}
}

// Fetch resolves ref: http(s) URLs are downloaded, data URIs decoded, and
// anything else is taken as literal UTF-8 text.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (Payload, error) {
	switch classify(ref) {
	case SourceURL:
		p, err := f.fetchURL(ctx, ref)
		if err != nil {
			return Payload{}, commonerrors.NewDocumentFetchFailedError(Describe(ref), err)
		}
		return p, nil
	case SourceDataURI:
		p, err := DecodeDataURI(ref)
		if err != nil {
			return Payload{}, commonerrors.NewDocumentFetchFailedError(Describe(ref), err)
		}
		return p, nil
	default:
		return Payload{Data: []byte(ref), MediaType: "text/plain", Source: SourceRaw}, nil
	}
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Payload{}, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Payload{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Payload{}, fmt.Errorf("read body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return Payload{}, fmt.Errorf("%w: limit %d bytes", ErrDocumentTooLarge, f.maxBytes)
	}

	mediaType := ""
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = mt
		}
	}

	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = u.Path
	}

	return Payload{Data: data, MediaType: mediaType, Source: SourceURL, Name: name}, nil
}

// DecodeDataURI decodes a data:<mime>[;base64],<payload> reference.
func DecodeDataURI(ref string) (Payload, error) {
	header, payload, ok := strings.Cut(ref, ",")
	if !ok {
		return Payload{}, ErrMalformedDataURI
	}

	mediaType, isBase64 := parseDataHeader(header)

	var data []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return Payload{}, fmt.Errorf("%w: %v", ErrMalformedDataURI, err)
			}
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformedDataURI, err)
		}
		data = []byte(unescaped)
	}

	return Payload{Data: data, MediaType: mediaType, Source: SourceDataURI}, nil
}

// parseDataHeader reads the media type and base64 flag from the part of a
// data URI before the comma. An empty media type defaults to text/plain.
func parseDataHeader(header string) (string, bool) {
	if len(header) >= 5 && strings.EqualFold(header[:5], "data:") {
		header = header[5:]
	}
	parts := strings.Split(header, ";")

	mediaType := strings.ToLower(strings.TrimSpace(parts[0]))
	if mediaType == "" {
		mediaType = "text/plain"
	}

	isBase64 := false
	for _, p := range parts[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	return mediaType, isBase64
}

// Describe renders a reference for logs without dumping payloads.
func Describe(ref string) string {
	switch classify(ref) {
	case SourceURL:
		return ref
	case SourceDataURI:
		header, _, _ := strings.Cut(ref, ",")
		return header
	default:
		return fmt.Sprintf("raw text (%d bytes)", len(ref))
	}
}

func classify(ref string) string {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		return SourceURL
	case strings.HasPrefix(lower, "data:"):
		return SourceDataURI
	default:
		return SourceRaw
	}
}
