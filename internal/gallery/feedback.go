package gallery

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"
)

// Feedback is one row of the append-only user feedback log.
type Feedback struct {
	Timestamp             string
	Filename              string
	StilPrezis            string
	AutorPrezis           string
	EmotiiPrezise         string
	Feedback              string
	ComentariuUtilizator  string
	StilCorectUtilizator  string
	AutorCorectUtilizator string
}

var feedbackHeader = []string{
	"timestamp", "filename", "stil_prezis", "autor_prezis", "emotii_prezise",
	"feedback", "comentariu_utilizator", "stil_corect_utilizator", "autor_corect_utilizator",
}

// AppendFeedback appends one row to the feedback log at path, writing the
// header when the file is created.
func AppendFeedback(path string, f Feedback) error {
	if f.Timestamp == "" {
		f.Timestamp = time.Now().Format("2006-01-02 15:04:05")
	}

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open feedback log: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if writeHeader {
		if err := w.Write(feedbackHeader); err != nil {
			return fmt.Errorf("write feedback header: %w", err)
		}
	}
	row := []string{
		f.Timestamp, f.Filename, f.StilPrezis, f.AutorPrezis, f.EmotiiPrezise,
		f.Feedback, f.ComentariuUtilizator, f.StilCorectUtilizator, f.AutorCorectUtilizator,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write feedback row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush feedback log: %w", err)
	}
	return nil
}
