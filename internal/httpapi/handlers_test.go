package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Voskan/merkle-timestamp/pkg/timestamp"
)

func newTestServer(t *testing.T) (*Server, *timestamp.Service) {
	t.Helper()
	svc, err := timestamp.New(timestamp.WithShardCount(2), timestamp.WithIndexWidth(4))
	if err != nil {
		t.Fatalf("timestamp.New: %v", err)
	}
	t.Cleanup(svc.Close)
	return NewServer(svc, nil), svc
}

func digestBytes(b byte) []byte {
	out := make([]byte, timestamp.DigestSize)
	out[0] = b
	return out
}

func TestHandleAddInsertsAndCountsNew(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler(nil, nil)

	body := append(append([]byte{}, digestBytes(1)...), digestBytes(2)...)
	req := httptest.NewRequest(http.MethodPost, "/add", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp addResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 2 || resp.New != 2 || resp.Existing != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// Re-sending the same digests should report them as existing.
	req2 := httptest.NewRequest(http.MethodPost, "/add", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	var resp2 addResponse
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp2.New != 0 || resp2.Existing != 2 {
		t.Fatalf("expected all duplicates on resend, got %+v", resp2)
	}
}

func TestHandleAddRejectsWrongLength(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/add", bytes.NewReader([]byte{1, 2, 3}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var errResp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errResp.Error == "" {
		t.Fatal("expected a non-empty error message")
	}
}

func TestHandleAddBatchContinuesPastMalformedEntry(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler(nil, nil)

	good := base64.StdEncoding.EncodeToString(digestBytes(5))
	reqBody, _ := json.Marshal(addBatchRequest{Hashes: []string{good, "not-valid-base64!!"}})
	req := httptest.NewRequest(http.MethodPost, "/add-batch", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp addBatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Error != "" || !resp.Results[0].IsNew {
		t.Fatalf("expected first entry to succeed as new: %+v", resp.Results[0])
	}
	if resp.Results[1].Error == "" {
		t.Fatalf("expected second entry to report an error: %+v", resp.Results[1])
	}
	if resp.Total != 2 || resp.New != 1 {
		t.Fatalf("unexpected aggregate counts: %+v", resp)
	}
}

func TestHandleCheckFindsAfterAdd(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler(nil, nil)

	d := digestBytes(9)
	addReq := httptest.NewRequest(http.MethodPost, "/add", bytes.NewReader(d))
	handler.ServeHTTP(httptest.NewRecorder(), addReq)

	checkReq := httptest.NewRequest(http.MethodPost, "/check", bytes.NewReader(d))
	checkReq.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkReq)

	var resp checkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Exists {
		t.Fatal("expected exists=true after /add")
	}
	// No Freeze has happened yet, so no proof is available even though the
	// digest exists in the live store.
	if len(resp.Proof) != 0 {
		t.Fatalf("expected no proof before update-tree, got %d pairs", len(resp.Proof))
	}
}

func TestHandleCheckReportsAbsence(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler(nil, nil)

	d := digestBytes(77)
	checkReq := httptest.NewRequest(http.MethodPost, "/check", bytes.NewReader(d))
	checkReq.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkReq)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a well-formed absent digest", rec.Code)
	}
	var resp checkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Exists {
		t.Fatal("expected exists=false for a digest never inserted")
	}
}

func TestHandleUpdateTreeThenCheckSingleLeafHasEmptyProof(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler(nil, nil)

	d := digestBytes(3)
	addReq := httptest.NewRequest(http.MethodPost, "/add", bytes.NewReader(d))
	handler.ServeHTTP(httptest.NewRecorder(), addReq)

	updateReq := httptest.NewRequest(http.MethodPost, "/update-tree", nil)
	updateRec := httptest.NewRecorder()
	handler.ServeHTTP(updateRec, updateReq)
	if updateRec.Code != http.StatusOK {
		t.Fatalf("update-tree status = %d, body = %s", updateRec.Code, updateRec.Body.String())
	}

	checkReq := httptest.NewRequest(http.MethodPost, "/check", bytes.NewReader(d))
	checkReq.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkReq)

	var resp checkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Exists {
		t.Fatal("expected exists=true")
	}
	// A single-leaf tree has depth 0, so the authentication path is empty
	// even though the digest is now a committed member.
	if len(resp.Proof) != 0 {
		t.Fatalf("expected empty proof for a single-leaf tree, got %d pairs", len(resp.Proof))
	}
}

func TestHandleStatsReportsCounts(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler(nil, nil)

	body := append(append(append([]byte{}, digestBytes(1)...), digestBytes(2)...), digestBytes(3)...)
	addReq := httptest.NewRequest(http.MethodPost, "/add", bytes.NewReader(body))
	handler.ServeHTTP(httptest.NewRecorder(), addReq)

	statsReq := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, statsReq)

	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 3 {
		t.Fatalf("stats.count = %d, want 3", resp.Count)
	}
	if resp.HasRoot {
		t.Fatal("expected no root before update-tree")
	}
}
