package places

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrEmptyLedger     = errors.New("places: no places to export, run a search first")
	ErrInvalidSnapshot = errors.New("places: invalid snapshot")
)

// xmlEscaper replaces the five characters that may not appear raw in KML
// text content.
var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// WriteKML writes one Placemark per place. The description is the place's
// type tags and coordinates are written longitude first, as KML requires.
func WriteKML(w io.Writer, places []Place) error {
	if len(places) == 0 {
		return ErrEmptyLedger
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	bw.WriteString(`<kml xmlns="http://www.opengis.net/kml/2.2">` + "\n")
	bw.WriteString("<Document>\n")
	for _, p := range places {
		fmt.Fprintf(bw, "<Placemark>\n<name>%s</name>\n<description>%s</description>\n<Point>\n<coordinates>%s,%s</coordinates>\n</Point>\n</Placemark>\n",
			escapeXML(p.Name),
			escapeXML(strings.Join(p.Types, ", ")),
			strconv.FormatFloat(p.Lng, 'f', -1, 64),
			strconv.FormatFloat(p.Lat, 'f', -1, 64),
		)
	}
	bw.WriteString("</Document>\n")
	bw.WriteString("</kml>\n")
	return bw.Flush()
}

// WriteKMZ writes the KML document zipped as doc.kml.
func WriteKMZ(w io.Writer, places []Place) error {
	if len(places) == 0 {
		return ErrEmptyLedger
	}
	zw := zip.NewWriter(w)
	f, err := zw.Create("doc.kml")
	if err != nil {
		return fmt.Errorf("kmz: %w", err)
	}
	if err := WriteKML(f, places); err != nil {
		return err
	}
	return zw.Close()
}

// WriteSnapshot writes s as indented JSON.
func WriteSnapshot(w io.Writer, s Snapshot) error {
	if s.Places == nil {
		s.Places = []Place{}
	}
	if s.SearchAreas == nil {
		s.SearchAreas = []SearchArea{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ReadSnapshot parses a snapshot document. It never touches a ledger, so a
// caller that restores only on success leaves its ledger unchanged when the
// document is bad. Errors wrap ErrInvalidSnapshot.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var raw struct {
		Places      *[]Place      `json:"placesData"`
		SearchAreas *[]SearchArea `json:"searchedAreas"`
	}
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if raw.Places == nil || raw.SearchAreas == nil {
		return Snapshot{}, fmt.Errorf("%w: placesData and searchedAreas are required", ErrInvalidSnapshot)
	}

	for i, p := range *raw.Places {
		if p.ID == "" {
			return Snapshot{}, fmt.Errorf("%w: place %d has no place_id", ErrInvalidSnapshot, i)
		}
	}
	for i, a := range *raw.SearchAreas {
		if a.Radius <= 0 {
			return Snapshot{}, fmt.Errorf("%w: search area %d has radius %v", ErrInvalidSnapshot, i, a.Radius)
		}
		if !a.Center.Valid() {
			return Snapshot{}, fmt.Errorf("%w: search area %d has center %s", ErrInvalidSnapshot, i, a.Center)
		}
	}
	return Snapshot{Places: *raw.Places, SearchAreas: *raw.SearchAreas}, nil
}

// Import reads a snapshot from r and, only if it parses, replaces the
// ledger contents with it.
func Import(l *Ledger, r io.Reader) (Snapshot, error) {
	s, err := ReadSnapshot(r)
	if err != nil {
		return Snapshot{}, err
	}
	l.Restore(s)
	logf("imported snapshot: %d places, %d search areas", l.Len(), len(s.SearchAreas))
	return s, nil
}
