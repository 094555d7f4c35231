package echoapi_test

import (
	"bytes"
	"encoding/json"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/esmeraldinha/backend/apps/api/echo"
	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
	appfs "github.com/esmeraldinha/backend/fs"
	emailsvc "github.com/esmeraldinha/backend/services/email"
	"github.com/esmeraldinha/backend/services/pdfdoc"
	inmemdb "github.com/esmeraldinha/backend/storage/database/inmem"
	testutil "github.com/esmeraldinha/backend/tests"
)

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
}

type testServer struct {
	echoapi.Server
	repo  calendar.Repository
	store *testutil.ArtifactStore
	hook  *test.Hook
}

var parseTemplatesOnce sync.Once

func setup(t *testing.T) testServer {
	t.Helper()
	conf := testutil.NewConfig()
	conf.Server.DisableReqLogs = true
	logger, hook := testutil.NewLogger(conf)
	parseTemplatesOnce.Do(func() {
		core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)
	})
	validate, translator := testutil.NewValidator()

	repo := inmemdb.NewCalendarRepository(inmemdb.Open())
	store := testutil.NewArtifactStore()
	processor := calendar.NewProcessor(openDocument, store, conf.Calendar.MaxPages, logger)
	fixtures := calendar.NewJSONFixtureSource(appfs.FS, appfs.LegendFixtures, appfs.DayFixtures)
	svc := calendar.NewService(repo, processor, fixtures, emailsvc.NewConsoleServiceMock(conf, logger), logger, conf)

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		CalendarSvc: svc,
		Validate:    validate,
		Translator:  translator,
	})
	t.Cleanup(func() { _ = server.Close() })
	return testServer{Server: server, repo: repo, store: store, hook: hook}
}

// fake calendar document, anything else goes through the PDF reader

const calendarText = "CALENDÁRIO LETIVO 2025\nI ETAPA: 03/02 a 30/04/2025\n" +
	"JANEIRO FEVEREIRO MARÇO ABRIL MAIO JUNHO JULHO AGOSTO SETEMBRO OUTUBRO NOVEMBRO DEZEMBRO"

var fakeCalendar = []byte("%FAKE calendar")

type fakePage struct{ text string }

func (p fakePage) Text() (string, error) { return p.text, nil }
func (p fakePage) Search(needle string) ([]calendar.Rect, error) {
	if !strings.Contains(p.text, needle) {
		return nil, nil
	}
	return []calendar.Rect{{X0: 100, Y0: 100, X1: 150, Y1: 110}}, nil
}
func (p fakePage) RenderRegion(clip calendar.Rect, scale float64) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, int(clip.Width()*scale), int(clip.Height()*scale))), nil
}

type fakeDoc struct{ page fakePage }

func (d fakeDoc) NumPages() int { return 1 }
func (d fakeDoc) Page(n int) (calendar.Page, error) {
	if n > 0 {
		return nil, errors.New("no such page")
	}
	return d.page, nil
}
func (d fakeDoc) Close() error { return nil }

func openDocument(content []byte) (calendar.Document, error) {
	if bytes.Equal(content, fakeCalendar) {
		return fakeDoc{page: fakePage{text: calendarText}}, nil
	}
	return pdfdoc.Open(content)
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

// newUploadRequest builds a multipart request with `content` as the "file" part.
func newUploadRequest(t *testing.T, path, filename string, content []byte, fields map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		_, _ = part.Write(content)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart Close() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req, httptest.NewRecorder()
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code)
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
