package places

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Index is an in-memory SQLite FTS5 index over a ledger's places. It lives
// only as long as the process and is rebuilt lazily whenever the ledger
// has changed since the last lookup.
type Index struct {
	ledger *Ledger

	mu      sync.Mutex
	db      *sql.DB
	version uint64
	built   bool
}

// Hit is a place matched by the index.
type Hit struct {
	Place    Place   `json:"place"`
	Distance float64 `json:"distance,omitempty"` // metres, set when a reference point is given
}

// NewIndex opens an empty in-memory index for l.
func NewIndex(l *Ledger) (*Index, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("places index open: %w", err)
	}
	// every connection to :memory: is its own database, so keep exactly one
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	_, err = db.Exec(`
		CREATE TABLE places (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			types        TEXT,
			vicinity     TEXT,
			lat          REAL NOT NULL,
			lon          REAL NOT NULL,
			geohash      TEXT
		);
		CREATE INDEX idx_places_lat     ON places(lat);
		CREATE INDEX idx_places_lon     ON places(lon);
		CREATE INDEX idx_places_geohash ON places(geohash);

		CREATE VIRTUAL TABLE places_fts USING fts5(
			id       UNINDEXED,
			name,
			types,
			vicinity,
			tokenize='unicode61 remove_diacritics 1'
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("places index schema: %w", err)
	}
	return &Index{ledger: l, db: db}, nil
}

// Close releases the database.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// sync rebuilds the tables from the ledger if it has changed. Callers hold idx.mu.
func (idx *Index) sync() error {
	v := idx.ledger.Version()
	if idx.built && v == idx.version {
		return nil
	}
	places := idx.ledger.Places()

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("index begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM places`); err != nil {
		return fmt.Errorf("index clear: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM places_fts`); err != nil {
		return fmt.Errorf("index clear fts: %w", err)
	}

	mainStmt, err := tx.Prepare(`INSERT INTO places (id, name, types, vicinity, lat, lon, geohash) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index prepare: %w", err)
	}
	defer mainStmt.Close()

	ftsStmt, err := tx.Prepare(`INSERT INTO places_fts (id, name, types, vicinity) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index prepare fts: %w", err)
	}
	defer ftsStmt.Close()

	for _, p := range places {
		types := strings.ReplaceAll(strings.Join(p.Types, " "), "_", " ")
		gh := encodeGeohash(p.Lat, p.Lng, 6)
		if _, err := mainStmt.Exec(p.ID, p.Name, types, p.Vicinity, p.Lat, p.Lng, gh); err != nil {
			logf("index: insert %s: %v", p.ID, err)
			continue
		}
		if _, err := ftsStmt.Exec(p.ID, p.Name, types, p.Vicinity); err != nil {
			logf("index: fts insert %s: %v", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index commit: %w", err)
	}
	idx.version = v
	idx.built = true
	return nil
}

// sanitizeFTSQuery converts a raw query into a safe FTS5 MATCH expression.
// Each word is treated as a quoted literal prefix match.
func sanitizeFTSQuery(q string) string {
	q = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '(', ')', '*', '+', '^', '-', '~', ':', '.':
			return ' '
		}
		return r
	}, q)
	words := strings.Fields(q)
	if len(words) == 0 {
		return ""
	}
	for i, w := range words {
		words[i] = `"` + strings.ToLower(w) + `"*`
	}
	return strings.Join(words, " ")
}

// Find searches the stored places by name, type and vicinity, optionally
// limited to a disk. Results are sorted by distance when hasRef is true.
func (idx *Index) Find(query string, ref LatLng, radiusM float64, hasRef bool) ([]Hit, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.sync(); err != nil {
		return nil, err
	}

	const limit = 500
	var (
		rows *sql.Rows
		err  error
	)

	switch {
	case query != "" && hasRef:
		latDelta := radiusM / 111000.0
		lonDelta := radiusM / (111000.0 * math.Cos(ref.Lat*math.Pi/180))
		ftsQ := sanitizeFTSQuery(query)
		if ftsQ == "" {
			return nil, nil
		}
		rows, err = idx.db.Query(`
			SELECT p.id FROM places p
			WHERE p.lat BETWEEN ? AND ?
			  AND p.lon BETWEEN ? AND ?
			  AND p.id IN (SELECT id FROM places_fts WHERE places_fts MATCH ?)
			LIMIT ?`,
			ref.Lat-latDelta, ref.Lat+latDelta,
			ref.Lng-lonDelta, ref.Lng+lonDelta,
			ftsQ, limit)

	case query != "":
		ftsQ := sanitizeFTSQuery(query)
		if ftsQ == "" {
			return nil, nil
		}
		rows, err = idx.db.Query(`
			SELECT p.id FROM places p
			WHERE p.id IN (SELECT id FROM places_fts WHERE places_fts MATCH ?)
			LIMIT ?`,
			ftsQ, limit)

	case hasRef:
		latDelta := radiusM / 111000.0
		lonDelta := radiusM / (111000.0 * math.Cos(ref.Lat*math.Pi/180))
		rows, err = idx.db.Query(`
			SELECT id FROM places
			WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
			LIMIT ?`,
			ref.Lat-latDelta, ref.Lat+latDelta,
			ref.Lng-lonDelta, ref.Lng+lonDelta,
			limit)

	default:
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("places FTS query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("places FTS rows: %w", err)
	}

	var result []Hit
	for _, id := range ids {
		p, ok := idx.ledger.Get(id)
		if !ok {
			continue // deleted since the last sync
		}
		h := Hit{Place: p}
		if hasRef {
			h.Distance = haversine(ref.Lat, ref.Lng, p.Lat, p.Lng)
			if h.Distance > radiusM {
				continue // outside actual radius (bounding box is an approximation)
			}
		}
		result = append(result, h)
	}

	if hasRef {
		sort.Slice(result, func(i, j int) bool {
			return result[i].Distance < result[j].Distance
		})
	}
	return result, nil
}
