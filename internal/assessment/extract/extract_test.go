package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"social-support-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeRecognizer struct {
	text  string
	err   error
	panic bool
	calls atomic.Int32
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte) (string, error) {
	f.calls.Add(1)
	if f.panic {
		panic("tesseract crashed")
	}
	return f.text, f.err
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func workbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/statement.csv":
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			_, _ = w.Write([]byte("Assets,Liabilities\n10,5\n"))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOptions{Timeout: time.Second, MaxBytes: 32})
	ctx := context.Background()

	t.Run("url", func(t *testing.T) {
		p, err := f.Fetch(ctx, srv.URL+"/statement.csv")
		require.NoError(t, err)
		assert.Equal(t, SourceURL, p.Source)
		assert.Equal(t, "text/csv", p.MediaType)
		assert.Equal(t, "/statement.csv", p.Name)
		assert.Contains(t, string(p.Data), "Assets")
	})

	t.Run("url not found", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})

	t.Run("url too large", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/big")
		assert.ErrorIs(t, err, ErrDocumentTooLarge)
	})

	t.Run("data uri", func(t *testing.T) {
		p, err := f.Fetch(ctx, dataURI("image/png", pngHeader))
		require.NoError(t, err)
		assert.Equal(t, SourceDataURI, p.Source)
		assert.Equal(t, "image/png", p.MediaType)
		assert.Equal(t, pngHeader, p.Data)
	})

	t.Run("unpadded base64", func(t *testing.T) {
		p, err := f.Fetch(ctx, "data:text/plain;base64,aGk")
		require.NoError(t, err)
		assert.Equal(t, "hi", string(p.Data))
	})

	t.Run("malformed data uri", func(t *testing.T) {
		_, err := f.Fetch(ctx, "data:image/png;base64")
		assert.ErrorIs(t, err, ErrMalformedDataURI)
	})

	t.Run("raw text", func(t *testing.T) {
		p, err := f.Fetch(ctx, "Title: Clerk Duration: 2 years")
		require.NoError(t, err)
		assert.Equal(t, SourceRaw, p.Source)
		assert.Equal(t, "text/plain", p.MediaType)
		assert.Equal(t, "Title: Clerk Duration: 2 years", string(p.Data))
	})
}

func TestExtractor_Extract(t *testing.T) {
	log := logger.NewTestLogger(t)
	ctx := context.Background()

	t.Run("plain text passes through", func(t *testing.T) {
		e := NewExtractor(nil, log)
		assert.Equal(t, "hello world", e.Extract(ctx, Payload{Data: []byte("hello world"), Source: SourceRaw}))
	})

	t.Run("invalid utf8 dropped", func(t *testing.T) {
		e := NewExtractor(nil, log)
		assert.Equal(t, "abc", e.Extract(ctx, Payload{Data: []byte("a\xffb\xfec")}))
	})

	t.Run("image goes through ocr", func(t *testing.T) {
		rec := &fakeRecognizer{text: "  Title: Nurse Duration: 3 years \n"}
		e := NewExtractor(rec, log)
		assert.Equal(t, "Title: Nurse Duration: 3 years", e.Extract(ctx, Payload{Data: pngHeader, MediaType: "image/png"}))
		assert.Equal(t, int32(1), rec.calls.Load())
	})

	t.Run("ocr panic falls back to decode", func(t *testing.T) {
		e := NewExtractor(&fakeRecognizer{panic: true}, log)
		assert.NotPanics(t, func() {
			e.Extract(ctx, Payload{Data: pngHeader, MediaType: "image/png"})
		})
	})

	t.Run("ocr error falls back to decode", func(t *testing.T) {
		e := NewExtractor(&fakeRecognizer{err: errors.New("no text")}, log)
		assert.Equal(t, "plain", e.Extract(ctx, Payload{Data: []byte("plain"), MediaType: "image/jpeg"}))
	})

	t.Run("broken pdf falls back to decode", func(t *testing.T) {
		e := NewExtractor(nil, log)
		out := e.Extract(ctx, Payload{Data: []byte("%PDF-1.4 not really"), MediaType: "application/pdf"})
		assert.Equal(t, "%PDF-1.4 not really", out)
	})

	t.Run("spreadsheet rendered as csv", func(t *testing.T) {
		data := workbook(t, [][]interface{}{{"Assets", "Liabilities"}, {1000, 250}})
		e := NewExtractor(nil, log)
		out := e.Extract(ctx, Payload{Data: data, Name: "/statements.xlsx", Source: SourceURL})
		assert.Equal(t, "Assets,Liabilities\n1000,250", out)
	})
}

func TestIsTabular(t *testing.T) {
	assert.True(t, IsTabular(Payload{MediaType: "text/csv"}))
	assert.True(t, IsTabular(Payload{Name: "/files/Report.CSV"}))
	assert.True(t, IsTabular(Payload{MediaType: "application/vnd.ms-excel"}))
	assert.False(t, IsTabular(Payload{MediaType: "text/plain", Source: SourceRaw, Data: []byte("PK\x03\x04")}))
	assert.False(t, IsTabular(Payload{MediaType: "image/png"}))
}

func TestService_ExtractAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("fetched " + r.URL.Path))
	}))
	defer srv.Close()

	log := logger.NewTestLogger(t)
	svc := NewService(
		NewFetcher(FetcherOptions{Timeout: time.Second}),
		NewExtractor(&fakeRecognizer{text: "ocr text"}, log),
		3, log,
	)

	refs := []string{
		srv.URL + "/a",
		srv.URL + "/fail",
		"raw resume text",
		dataURI("image/png", pngHeader),
		"data:broken",
		srv.URL + "/b",
	}

	docs := svc.ExtractAll(context.Background(), refs)
	require.Len(t, docs, len(refs))

	for i, d := range docs {
		assert.Equal(t, i, d.Index)
	}
	assert.Equal(t, "fetched /a", docs[0].Text)
	assert.Equal(t, "", docs[1].Text)
	assert.Error(t, docs[1].Err)
	assert.Equal(t, SourceURL, docs[1].Source)
	assert.Equal(t, "raw resume text", docs[2].Text)
	assert.Equal(t, "ocr text", docs[3].Text)
	assert.Equal(t, "", docs[4].Text)
	assert.Error(t, docs[4].Err)
	assert.Equal(t, "fetched /b", docs[5].Text)
	assert.Equal(t, 10, docs[0].Length())
}

func TestService_ExtractAll_Empty(t *testing.T) {
	log := logger.NewNoOpLogger()
	svc := NewService(NewFetcher(FetcherOptions{}), NewExtractor(nil, log), 0, log)
	assert.Empty(t, svc.ExtractAll(context.Background(), nil))
}

func TestImageOCR_ExtractTexts(t *testing.T) {
	log := logger.NewTestLogger(t)
	ctx := context.Background()

	refs := []string{
		"no comma at all",
		dataURI("application/pdf", []byte("%PDF")),
		dataURI("image/png", pngHeader),
		"data:image/png;base64,!!!not base64!!!",
		dataURI("image/jpeg", []byte{0xff, 0xd8, 0xff}),
	}

	t.Run("keeps only successes with their index", func(t *testing.T) {
		o := NewImageOCR(&fakeRecognizer{text: " scanned "}, log)
		out := o.ExtractTexts(ctx, refs)
		require.Len(t, out, 2)
		assert.Equal(t, OCRText{Index: 2, Text: "scanned"}, out[0])
		assert.Equal(t, 4, out[1].Index)
	})

	t.Run("recognizer failure skips document", func(t *testing.T) {
		o := NewImageOCR(&fakeRecognizer{err: errors.New("engine error")}, log)
		assert.Empty(t, o.ExtractTexts(ctx, refs))
	})

	t.Run("recognizer panic skips document", func(t *testing.T) {
		o := NewImageOCR(&fakeRecognizer{panic: true}, log)
		assert.NotPanics(t, func() {
			assert.Empty(t, o.ExtractTexts(ctx, refs))
		})
	})

	t.Run("no recognizer", func(t *testing.T) {
		o := NewImageOCR(nil, log)
		assert.Empty(t, o.ExtractTexts(ctx, refs))
	})
}
