package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"triage/internal"
)

// DB is the document store for enriched email documents: append-only
// inserts, nearest-neighbour search over stored embeddings, and the
// newest-first listing the read API serves.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// timeLayout pads the fractional second to full width. RFC3339Nano drops
// trailing zeros, which breaks the lexicographic ORDER BY on the TEXT
// createdAt column ("...00.1Z" sorts after "...00.15Z").
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, now: time.Now}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS emails (
  id TEXT PRIMARY KEY,
  subject TEXT NOT NULL,
  sender TEXT NOT NULL,
  recipients TEXT NOT NULL,
  body TEXT NOT NULL,
  attachments TEXT NOT NULL,
  mainIntent TEXT NOT NULL,
  requestDetails TEXT NOT NULL,
  embedding TEXT,
  embeddingModel TEXT,
  embeddingMeta TEXT,
  duplicate INTEGER NOT NULL DEFAULT 0,
  duplicateOfId TEXT,
  duplicateScore REAL,
  receivedAt TEXT NOT NULL,
  createdAt TEXT NOT NULL,
  updatedAt TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_emails_createdAt ON emails(createdAt);
`
	_, err := d.conn.Exec(schema)
	return err
}

// InsertEmail commits one document. Every call inserts a new row with a
// generated id; there is no upsert, duplicates are only flagged. The
// document's ID and timestamps are filled in on success.
func (d *DB) InsertEmail(doc *internal.EmailDocument) (string, error) {
	id := uuid.NewString()
	now := d.now().UTC()

	recipientsJSON, _ := json.Marshal(doc.Recipients)
	attachmentsJSON, _ := json.Marshal(doc.Attachments)
	detailsJSON, _ := json.Marshal(doc.RequestDetails)

	var embeddingJSON, embeddingModel, embeddingMetaJSON *string
	if doc.Embedding != nil {
		blob, _ := json.Marshal(doc.Embedding)
		s := string(blob)
		embeddingJSON = &s
		embeddingModel = &doc.EmbeddingModel
		metaBlob, _ := json.Marshal(doc.EmbeddingMeta)
		meta := string(metaBlob)
		embeddingMetaJSON = &meta
	}

	var dupOfID *string
	var dupScore *float64
	if doc.Duplicate {
		dupOfID = &doc.DuplicateOfID
		dupScore = &doc.DuplicateScore
	}

	_, err := d.conn.Exec(`
INSERT INTO emails (
  id, subject, sender, recipients, body, attachments,
  mainIntent, requestDetails,
  embedding, embeddingModel, embeddingMeta,
  duplicate, duplicateOfId, duplicateScore,
  receivedAt, createdAt, updatedAt
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		id, doc.Subject, doc.Sender, string(recipientsJSON), doc.Body, string(attachmentsJSON),
		doc.MainIntent, string(detailsJSON),
		embeddingJSON, embeddingModel, embeddingMetaJSON,
		boolToInt(doc.Duplicate), dupOfID, dupScore,
		doc.ReceivedAt.UTC().Format(timeLayout),
		now.Format(timeLayout),
		now.Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert email: %w", err)
	}

	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return id, nil
}

// SearchSimilar ranks stored embeddings by cosine similarity against the
// query vector. The ranking is truncated to the candidate pool first and
// the top K of the pool is returned, mirroring the approximate
// nearest-neighbour contract of a dedicated vector index.
func (d *DB) SearchSimilar(vector []float64, numCandidates, topK int) ([]internal.SimilarEmail, error) {
	rows, err := d.conn.Query(`
SELECT id, subject, sender, embedding
FROM emails WHERE embedding IS NOT NULL
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranked []internal.SimilarEmail
	for rows.Next() {
		var hit internal.SimilarEmail
		var embeddingJSON string
		if err := rows.Scan(&hit.ID, &hit.Subject, &hit.Sender, &embeddingJSON); err != nil {
			return nil, err
		}
		var stored []float64
		if err := json.Unmarshal([]byte(embeddingJSON), &stored); err != nil {
			continue
		}
		if len(stored) != len(vector) {
			// Vectors from a different model dimensionality are not comparable.
			continue
		}
		hit.Score = cosineSimilarity(vector, stored)
		ranked = append(ranked, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if numCandidates > 0 && len(ranked) > numCandidates {
		ranked = ranked[:numCandidates]
	}
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// ListEmails returns all stored documents sorted by creation time
// descending, for the dashboard read API.
func (d *DB) ListEmails() ([]internal.EmailDocument, error) {
	rows, err := d.conn.Query(`
SELECT id, subject, sender, recipients, body, attachments,
       mainIntent, requestDetails,
       embedding, embeddingModel, embeddingMeta,
       duplicate, duplicateOfId, duplicateScore,
       receivedAt, createdAt, updatedAt
FROM emails ORDER BY createdAt DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailDocument
	for rows.Next() {
		var doc internal.EmailDocument
		var recipientsJSON, attachmentsJSON, detailsJSON string
		var embeddingJSON, embeddingModel, embeddingMetaJSON *string
		var duplicate int
		var dupOfID *string
		var dupScore *float64
		var receivedAt, createdAt, updatedAt string

		if err := rows.Scan(
			&doc.ID, &doc.Subject, &doc.Sender, &recipientsJSON, &doc.Body, &attachmentsJSON,
			&doc.MainIntent, &detailsJSON,
			&embeddingJSON, &embeddingModel, &embeddingMetaJSON,
			&duplicate, &dupOfID, &dupScore,
			&receivedAt, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}

		_ = json.Unmarshal([]byte(recipientsJSON), &doc.Recipients)
		_ = json.Unmarshal([]byte(attachmentsJSON), &doc.Attachments)
		_ = json.Unmarshal([]byte(detailsJSON), &doc.RequestDetails)
		if embeddingJSON != nil {
			_ = json.Unmarshal([]byte(*embeddingJSON), &doc.Embedding)
		}
		if embeddingModel != nil {
			doc.EmbeddingModel = *embeddingModel
		}
		if embeddingMetaJSON != nil {
			meta := &internal.EmbeddingMeta{}
			if err := json.Unmarshal([]byte(*embeddingMetaJSON), meta); err == nil {
				doc.EmbeddingMeta = meta
			}
		}
		doc.Duplicate = duplicate != 0
		if dupOfID != nil {
			doc.DuplicateOfID = *dupOfID
		}
		if dupScore != nil {
			doc.DuplicateScore = *dupScore
		}
		doc.ReceivedAt = parseTime(receivedAt)
		doc.CreatedAt = parseTime(createdAt)
		doc.UpdatedAt = parseTime(updatedAt)

		out = append(out, doc)
	}
	return out, rows.Err()
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
