//go:build sqlite_vec && cgo

package memory

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"

	"aura/internal/logging"
)

// VectorIndex is the native sqlite-vec episodic index used by tagged builds.
// It lives in a separate database file opened through the cgo driver; the
// plain store remains the source of truth, and recall falls back to the
// in-process scan until the index has accumulated vectors.
type VectorIndex struct {
	db   *sql.DB
	dims int
}

// openEpisodeIndex opens the native index for the hierarchical facade. A
// failure here disables the fast path rather than failing memory startup.
func openEpisodeIndex(path string, dims int) episodeIndex {
	idx, err := NewVectorIndex(path, dims)
	if err != nil {
		logging.MemoryWarn("[VecIndex] unavailable, using in-process recall: %v", err)
		return nil
	}
	return idx
}

// NewVectorIndex opens (or creates) the vec0 index at path.
func NewVectorIndex(path string, dims int) (*VectorIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	create := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS episode_vec USING vec0(embedding float[%d], episode_id TEXT)`, dims)
	if _, err := db.Exec(create); err != nil {
		db.Close()
		return nil, fmt.Errorf("create vec0 table: %w", err)
	}
	logging.Memory("[VecIndex] opened %s (dims=%d)", path, dims)
	return &VectorIndex{db: db, dims: dims}, nil
}

// Upsert stores an episode vector.
func (v *VectorIndex) Upsert(episodeID string, vec []float32) error {
	if len(vec) != v.dims {
		return fmt.Errorf("vector dims %d != index dims %d", len(vec), v.dims)
	}
	_, err := v.db.Exec(
		`INSERT INTO episode_vec (embedding, episode_id) VALUES (?, ?)`,
		serializeFloat32(vec), episodeID,
	)
	return err
}

// Nearest returns the episode IDs of the k nearest vectors.
func (v *VectorIndex) Nearest(query []float32, k int) ([]string, error) {
	rows, err := v.db.Query(
		`SELECT episode_id FROM episode_vec WHERE embedding MATCH ? ORDER BY distance LIMIT ?`,
		serializeFloat32(query), k,
	)
	if err != nil {
		return nil, fmt.Errorf("vec query: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the index database.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}

// serializeFloat32 encodes a vector in sqlite-vec's little-endian blob format.
func serializeFloat32(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
