package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"guvohbot/pkg/dedupe"
	"guvohbot/pkg/scan"
)

const sampleText = "Guvohnoma: AAF3799360\nDavlat raqami: 01 A 123 BC.\nRusumi: CHEVROLET COBALT.\nTel: 901234567.\nTugallangan sana: 12.05.2023"

const sampleReply = "01A123BC  CHEVROLET  AAF3799360  379936001123  12.05.2023"

type fakeScanner struct {
	res     scan.Result
	err     error
	path    string
	existed bool
}

func (f *fakeScanner) Scan(_ context.Context, path string) (scan.Result, error) {
	f.path = path
	_, err := os.Stat(path)
	f.existed = err == nil
	return f.res, f.err
}

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T, s *server) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if s.maxUpload == 0 {
		s.maxUpload = 5 * 1024 * 1024
	}
	s.log = zerolog.Nop()
	r := gin.New()
	setupRoutes(r, s)
	return r
}

func multipartFile(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = w.Write(content)
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	r := setupTestServer(t, &server{scanner: &fakeScanner{}})
	resp := performRequest(r, http.MethodGet, "/healthz", nil, "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", resp.Code)
	}
	if resp.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestExtractText(t *testing.T) {
	r := setupTestServer(t, &server{scanner: &fakeScanner{}})
	body, _ := json.Marshal(map[string]string{"text": sampleText})
	resp := performRequest(r, http.MethodPost, "/v1/extract/text", bytes.NewBuffer(body), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	var got struct {
		Record map[string]string `json:"record"`
		Empty  bool              `json:"empty"`
		Reply  string            `json:"reply"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Reply != sampleReply {
		t.Fatalf("reply=%q want %q", got.Reply, sampleReply)
	}
	if got.Empty {
		t.Fatalf("record reported empty")
	}
	if got.Record["Tugallangan_sana"] != "12.05.2023" || got.Record["Number"] != "01A123BC" {
		t.Fatalf("record labels wrong: %+v", got.Record)
	}

	resp = performRequest(r, http.MethodPost, "/v1/extract/text", strings.NewReader(`{}`), "", "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("missing text status=%d", resp.Code)
	}
}

func TestExtractImage(t *testing.T) {
	fs := &fakeScanner{res: scan.FromText(sampleText)}
	r := setupTestServer(t, &server{scanner: fs})
	buf, ct := multipartFile(t, "doc.JPG", []byte("jpeg bytes"))
	resp := performRequest(r, http.MethodPost, "/v1/extract", buf, "", ct)
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	if !fs.existed {
		t.Fatalf("scanner did not see the uploaded file")
	}
	if filepath.Ext(fs.path) != ".jpg" {
		t.Fatalf("upload saved with ext %q", filepath.Ext(fs.path))
	}
	if _, err := os.Stat(fs.path); !os.IsNotExist(err) {
		t.Fatalf("upload not removed: %v", err)
	}
	if !strings.Contains(resp.Body.String(), sampleReply) {
		t.Fatalf("reply missing from body: %s", resp.Body.String())
	}
}

func TestExtractImageRejects(t *testing.T) {
	fs := &fakeScanner{}
	r := setupTestServer(t, &server{scanner: fs, maxUpload: 4})

	resp := performRequest(r, http.MethodPost, "/v1/extract", strings.NewReader(""), "", "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("no file status=%d", resp.Code)
	}
	buf, ct := multipartFile(t, "notes.txt", []byte("abc"))
	resp = performRequest(r, http.MethodPost, "/v1/extract", buf, "", ct)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("txt upload status=%d", resp.Code)
	}
	buf, ct = multipartFile(t, "big.png", []byte("0123456789"))
	resp = performRequest(r, http.MethodPost, "/v1/extract", buf, "", ct)
	if resp.Code != http.StatusBadRequest || !strings.Contains(resp.Body.String(), "too large") {
		t.Fatalf("oversize status=%d body=%s", resp.Code, resp.Body.String())
	}
	if fs.path != "" {
		t.Fatalf("scanner called for rejected upload")
	}
}

func TestExtractImageRejectsOversizedBody(t *testing.T) {
	fs := &fakeScanner{}
	r := setupTestServer(t, &server{scanner: fs, maxUpload: 1024})
	buf, ct := multipartFile(t, "huge.png", bytes.Repeat([]byte{0xff}, 2<<20))
	resp := performRequest(r, http.MethodPost, "/v1/extract", buf, "", ct)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body status=%d body=%s", resp.Code, resp.Body.String())
	}
	if fs.path != "" {
		t.Fatalf("scanner called for oversized body")
	}
}

func TestExtractImageScanError(t *testing.T) {
	fs := &fakeScanner{err: errors.New("tesseract exploded")}
	r := setupTestServer(t, &server{scanner: fs})
	buf, ct := multipartFile(t, "a.png", []byte("png"))
	resp := performRequest(r, http.MethodPost, "/v1/extract", buf, "", ct)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), scan.ErrorPrefix+"tesseract exploded") {
		t.Fatalf("body=%s", resp.Body.String())
	}
}

func TestAPIAuth(t *testing.T) {
	secret := []byte("test-secret")
	r := setupTestServer(t, &server{scanner: &fakeScanner{}, jwtSecret: secret})
	body := func() io.Reader { return strings.NewReader(`{"text":"x"}`) }

	resp := performRequest(r, http.MethodPost, "/v1/extract/text", body(), "", "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("no token status=%d", resp.Code)
	}

	tok, err := issueToken(secret, "crm", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	resp = performRequest(r, http.MethodPost, "/v1/extract/text", body(), tok, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("valid token status=%d body=%s", resp.Code, resp.Body.String())
	}

	other, _ := issueToken([]byte("other"), "crm", time.Hour)
	resp = performRequest(r, http.MethodPost, "/v1/extract/text", body(), other, "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret status=%d", resp.Code)
	}

	expired, _ := issueToken(secret, "crm", -time.Minute)
	resp = performRequest(r, http.MethodPost, "/v1/extract/text", body(), expired, "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status=%d", resp.Code)
	}

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "crm"}).SignedString(secret)
	resp = performRequest(r, http.MethodPost, "/v1/extract/text", body(), noExp, "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("token without exp status=%d", resp.Code)
	}

	resp = performRequest(r, http.MethodGet, "/healthz", nil, "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz must stay public, status=%d", resp.Code)
	}
}

func TestIssueTokenErrors(t *testing.T) {
	if _, err := issueToken([]byte("s"), "  ", time.Hour); err == nil {
		t.Fatalf("expected error for empty subject")
	}
	if _, err := issueToken(nil, "crm", time.Hour); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}

func TestWebhook(t *testing.T) {
	api := &fakeAPI{}
	b := newBot(api, &fakeReplier{}, dedupe.NewMemory(time.Minute), 1, zerolog.Nop())
	r := setupTestServer(t, &server{scanner: &fakeScanner{}, bot: b, webhookSecret: "s3cret"})

	upd := `{"update_id":5,"message":{"message_id":3,"chat":{"id":77,"type":"private"},"text":"/start","entities":[{"type":"bot_command","offset":0,"length":6}]}}`
	resp := performRequest(r, http.MethodPost, "/telegram/webhook/wrong", strings.NewReader(upd), "", "application/json")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("wrong secret status=%d", resp.Code)
	}
	resp = performRequest(r, http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader(upd), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("webhook status=%d", resp.Code)
	}
	// redelivery of the same update
	resp = performRequest(r, http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader(upd), "", "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("redelivery status=%d", resp.Code)
	}
	b.Wait()
	msgs := api.messages()
	if len(msgs) != 1 || msgs[0].ChatID != 77 || msgs[0].Text != startText {
		t.Fatalf("unexpected replies: %+v", msgs)
	}

	resp = performRequest(r, http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader("not json"), "", "application/json")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("bad body status=%d", resp.Code)
	}
}

func TestWebhookDisabledWithoutBot(t *testing.T) {
	r := setupTestServer(t, &server{scanner: &fakeScanner{}})
	resp := performRequest(r, http.MethodPost, "/telegram/webhook/x", strings.NewReader("{}"), "", "application/json")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status=%d", resp.Code)
	}
}

func TestPrintResult(t *testing.T) {
	res := scan.FromText(sampleText)
	var buf bytes.Buffer
	if err := printResult(&buf, res, false); err != nil {
		t.Fatalf("print: %v", err)
	}
	if buf.String() != sampleReply+"\n" {
		t.Fatalf("plain output=%q", buf.String())
	}
	buf.Reset()
	if err := printResult(&buf, res, true); err != nil {
		t.Fatalf("print json: %v", err)
	}
	if !strings.Contains(buf.String(), `"Tugallangan_sana": "12.05.2023"`) {
		t.Fatalf("json output missing date label: %s", buf.String())
	}
}

func TestWebhookPath(t *testing.T) {
	if got := webhookPath("abc"); got != "/telegram/webhook/abc" {
		t.Fatalf("webhookPath=%q", got)
	}
	if got := webhookPath(""); got != "/telegram/webhook/hook" {
		t.Fatalf("webhookPath empty=%q", got)
	}
}
