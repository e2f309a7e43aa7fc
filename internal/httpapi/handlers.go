package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Voskan/merkle-timestamp/pkg/timestamp"
)

// errorResponse is the structured body of every 4xx/5xx response the
// handlers write, per the "structured JSON body on input-format errors"
// rule. ServeMux's own 404/405 replies are plain text.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// addResponse is returned by POST /add.
type addResponse struct {
	Total    int `json:"total"`
	New      int `json:"new"`
	Existing int `json:"existing"`
}

// handleAdd reads the request body as a sequence of concatenated 64-byte
// digests and inserts each one. A body whose length is not a multiple of
// the digest size is rejected wholesale before any insert runs.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAddBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body)%timestamp.DigestSize != 0 {
		writeError(w, http.StatusBadRequest, "body length must be a multiple of 64 bytes")
		return
	}

	ctx := r.Context()
	total := len(body) / timestamp.DigestSize
	newCount := 0
	for i := 0; i < total; i++ {
		raw := body[i*timestamp.DigestSize : (i+1)*timestamp.DigestSize]
		d, err := timestamp.ParseDigest(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		existed, err := s.svc.Contains(ctx, d)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := s.svc.Insert(ctx, d); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !existed {
			newCount++
		}
	}

	writeJSON(w, addResponse{Total: total, New: newCount, Existing: total - newCount})
}

// addBatchRequest is the body of POST /add-batch: a JSON array of
// base64-encoded 64-byte digests.
type addBatchRequest struct {
	Hashes []string `json:"hashes"`
}

// addBatchEntry reports the outcome for one hash in a batch: IsNew is
// meaningful only when Error is empty.
type addBatchEntry struct {
	IsNew bool   `json:"is_new"`
	Error string `json:"error,omitempty"`
}

type addBatchResponse struct {
	Total    int             `json:"total"`
	New      int             `json:"new"`
	Existing int             `json:"existing"`
	Results  []addBatchEntry `json:"results"`
}

// handleAddBatch is the JSON/base64 sibling of /add: unlike /add, a
// malformed entry does not fail the whole request — it is recorded as a
// per-entry error and the remaining entries are still processed.
func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	var req addBatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAddBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	results := make([]addBatchEntry, len(req.Hashes))
	newCount := 0
	for i, encoded := range req.Hashes {
		d, err := timestamp.ParseDigestBase64(encoded)
		if err != nil {
			results[i] = addBatchEntry{Error: err.Error()}
			continue
		}
		existed, err := s.svc.Contains(ctx, d)
		if err != nil {
			results[i] = addBatchEntry{Error: err.Error()}
			continue
		}
		if err := s.svc.Insert(ctx, d); err != nil {
			results[i] = addBatchEntry{Error: err.Error()}
			continue
		}
		results[i] = addBatchEntry{IsNew: !existed}
		if !existed {
			newCount++
		}
	}

	writeJSON(w, addBatchResponse{
		Total:    len(req.Hashes),
		New:      newCount,
		Existing: len(req.Hashes) - newCount,
		Results:  results,
	})
}

// proofPairJSON is the wire form of a merkle.ProofPair.
type proofPairJSON struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

type checkResponse struct {
	Exists bool            `json:"exists"`
	Proof  []proofPairJSON `json:"proof,omitempty"`
}

// handleCheck accepts either raw 64-byte binary or base64-of-64-bytes: a
// 64-byte body with Content-Type application/octet-stream (or none) is read
// as raw binary, anything else is treated as a base64 string body.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCheckBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	d, err := parseSingleDigest(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	exists, err := s.svc.Contains(ctx, d)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := checkResponse{Exists: exists}
	if exists {
		if path, ok := s.svc.Prove(ctx, d); ok {
			resp.Proof = make([]proofPairJSON, len(path))
			for i, pair := range path {
				resp.Proof[i] = proofPairJSON{
					Left:  pair.Left.Base64(),
					Right: pair.Right.Base64(),
				}
			}
		}
	}
	writeJSON(w, resp)
}

// parseSingleDigest accepts raw 64-byte binary for
// application/octet-stream (or empty) Content-Type, and treats any other
// Content-Type's body as a base64-encoded string.
func parseSingleDigest(contentType string, body []byte) (timestamp.Digest, error) {
	if contentType == "" || contentType == "application/octet-stream" {
		if len(body) == timestamp.DigestSize {
			return timestamp.ParseDigest(body)
		}
	}
	return timestamp.ParseDigestBase64(trimTrailingNewline(body))
}

func trimTrailingNewline(b []byte) string {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return string(b)
}

type updateTreeResponse struct {
	TreeSize int `json:"tree_size"`
	Count    int `json:"count"`
}

// handleUpdateTree calls Freeze and reports the resulting tree size and
// digest count.
func (s *Server) handleUpdateTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.svc.Freeze(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := s.svc.Stats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, updateTreeResponse{TreeSize: stats.TreeSize, Count: int(stats.Count)})
}

type statsResponse struct {
	Count          uint64 `json:"count"`
	FilledBuckets  uint64 `json:"filled_buckets"`
	TotalCapacity  uint64 `json:"total_capacity"`
	TreeSize       int    `json:"tree_size"`
	Root           string `json:"root,omitempty"`
	HasRoot        bool   `json:"has_root"`
	LastUpdateUnix int64  `json:"last_update_unix,omitempty"`
	HasLastUpdate  bool   `json:"has_last_update"`
	ShardCount     int    `json:"shard_count"`
}

// handleStats reports current store and commitment state.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := statsResponse{
		Count:          stats.Count,
		FilledBuckets:  stats.FilledBuckets,
		TotalCapacity:  stats.TotalCapacity,
		TreeSize:       stats.TreeSize,
		HasRoot:        stats.HasRoot,
		HasLastUpdate:  stats.HasLastUpdate,
		ShardCount:     stats.ShardCount,
		LastUpdateUnix: stats.LastUpdateUnixSeconds,
	}
	if stats.HasRoot {
		resp.Root = stats.Root.Base64()
	}
	writeJSON(w, resp)
}

// maxAddBodyBytes bounds /add and /add-batch request bodies so a client
// cannot force an unbounded read into memory.
const maxAddBodyBytes = 64 << 20 // 64 MiB

// maxCheckBodyBytes bounds /check bodies: a single digest is at most 64
// raw bytes or ~88 base64 characters, with generous headroom for whitespace.
const maxCheckBodyBytes = 4096
