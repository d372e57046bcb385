// Package scheduler turns a CSV of elections into timed webhook jobs that
// call POST /runNelda shortly before and after each election day.
package scheduler

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// Event is one CSV row.
type Event struct {
	ElectionID  string `csv:"electionId" json:"electionId"`
	CountryName string `csv:"countryName" json:"countryName"`
	Types       string `csv:"types" json:"types"`
	Year        string `csv:"year" json:"year"`
	MMDD        string `csv:"mmdd" json:"mmdd"`
}

// ReadEvents decodes rows under the header electionId,countryName,types,year,mmdd.
func ReadEvents(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "scheduler: read csv header")
	}

	var events []Event
	for {
		var e Event
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrap(err, "scheduler: decode csv row")
		}
		e.ElectionID = strings.TrimSpace(e.ElectionID)
		e.CountryName = strings.TrimSpace(e.CountryName)
		e.Types = strings.TrimSpace(e.Types)
		e.Year = strings.TrimSpace(e.Year)
		e.MMDD = strings.TrimSpace(e.MMDD)
		events = append(events, e)
	}
	return events, nil
}

// ReadEventsFile opens path and decodes it with ReadEvents.
func ReadEventsFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: open %s", path)
	}
	defer f.Close()
	return ReadEvents(f)
}
