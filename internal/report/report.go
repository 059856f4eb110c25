// Package report imports health checkup reports. It pulls the plain text
// out of a PDF and scrapes the vitals the companion cares about.
package report

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/qianban/qianban/internal/storage"
)

// ErrNoVitals is returned when a report yields none of the known fields.
var ErrNoVitals = errors.New("no recognizable vitals in report")

// Checkup reports come in many layouts; these patterns only assume the
// usual "label value" shape with Chinese or ASCII separators.
var (
	bloodPressureRe = regexp.MustCompile(`(?:血压|BP)[:：\s]*(\d{2,3})\s*/\s*(\d{2,3})`)
	heartRateRe     = regexp.MustCompile(`(?:心率|脉搏|HR)[:：\s]*(\d{2,3})`)
	weightRe        = regexp.MustCompile(`(?:体重)[:：\s]*(\d{2,3}(?:\.\d+)?)\s*(?:kg|KG|公斤|千克)?`)
)

// ImportPDF extracts the text of the PDF at path and parses its vitals
// into a HealthRecord.
func ImportPDF(path string) (storage.HealthRecord, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return storage.HealthRecord{}, fmt.Errorf("opening report %s: %w", path, err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return storage.HealthRecord{}, fmt.Errorf("extracting text from %s: %w", path, err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return storage.HealthRecord{}, fmt.Errorf("reading text from %s: %w", path, err)
	}

	return ParseVitals(string(text))
}

// ParseVitals scrapes blood pressure, heart rate and weight out of free
// report text. Fields that are absent stay zero; if none are found the
// record is rejected with ErrNoVitals.
func ParseVitals(text string) (storage.HealthRecord, error) {
	rec := storage.HealthRecord{
		ID:         uuid.New().String(),
		RecordedAt: time.Now().UTC(),
	}

	found := false
	if m := bloodPressureRe.FindStringSubmatch(text); m != nil {
		rec.Systolic, _ = strconv.Atoi(m[1])
		rec.Diastolic, _ = strconv.Atoi(m[2])
		found = true
	}
	if m := heartRateRe.FindStringSubmatch(text); m != nil {
		rec.HeartRate, _ = strconv.Atoi(m[1])
		found = true
	}
	if m := weightRe.FindStringSubmatch(text); m != nil {
		rec.WeightKg, _ = strconv.ParseFloat(m[1], 64)
		found = true
	}
	if !found {
		return storage.HealthRecord{}, ErrNoVitals
	}

	rec.Notes = summarizeNotes(text)
	return rec, nil
}

// summarizeNotes keeps the lines around common conclusion labels so the
// record carries the doctor's wording, not the whole report.
func summarizeNotes(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "结论") || strings.Contains(line, "建议") || strings.Contains(line, "诊断") {
			kept = append(kept, line)
		}
	}
	if len(kept) > 3 {
		kept = kept[:3]
	}
	return strings.Join(kept, "；")
}
