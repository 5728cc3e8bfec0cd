// Package sniffer inspects uploaded report files before extraction.
// It checks the PDF signature, size, and name, fingerprints the content, and
// suggests the reporting year from the extracted text.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMaxSize is the largest upload accepted (BWA reports are small).
const DefaultMaxSize = 10 << 20

var (
	ErrEmptyFile    = errors.New("file is empty")
	ErrNotPDF       = errors.New("file is not a PDF document")
	ErrFileTooLarge = errors.New("file exceeds the size limit")
	ErrBadExtension = errors.New("file name must end in .pdf")
)

const (
	signatureWindow  = 1024
	minPlausibleYear = 1990
)

var (
	pdfSignature   = []byte("%PDF-")
	yearPattern    = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	versionPattern = regexp.MustCompile(`^%PDF-(\d\.\d)`)
)

// DocumentInfo describes an accepted upload.
type DocumentInfo struct {
	FileName    string
	Size        int64
	PDFVersion  string
	Fingerprint string // SHA256 of the content
}

// DetectDocument validates that data is a PDF within maxSize bytes.
// maxSize <= 0 uses DefaultMaxSize. The signature may be preceded by junk
// bytes, as allowed by PDF readers, but must appear in the first kilobyte.
func DetectDocument(data []byte, fileName string, maxSize int64) (*DocumentInfo, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), maxSize)
	}
	if fileName != "" && !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return nil, ErrBadExtension
	}

	window := data
	if len(window) > signatureWindow {
		window = window[:signatureWindow]
	}
	idx := bytes.Index(window, pdfSignature)
	if idx < 0 {
		return nil, ErrNotPDF
	}

	info := &DocumentInfo{
		FileName:    filepath.Base(fileName),
		Size:        int64(len(data)),
		Fingerprint: Fingerprint(data),
	}
	if m := versionPattern.FindSubmatch(data[idx:]); m != nil {
		info.PDFVersion = string(m[1])
	}
	return info, nil
}

// Fingerprint returns the hex SHA256 of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SuggestYear returns the most frequent plausible year in text. Ties go to
// the later year, since annual overviews often mention the prior year too.
func SuggestYear(text string, maxYear int) (int, bool) {
	counts := make(map[int]int)
	for _, m := range yearPattern.FindAllStringSubmatch(text, -1) {
		y, err := strconv.Atoi(m[1])
		if err != nil || y < minPlausibleYear || (maxYear > 0 && y > maxYear) {
			continue
		}
		counts[y]++
	}

	best, bestCount := 0, 0
	for y, c := range counts {
		if c > bestCount || (c == bestCount && y > best) {
			best, bestCount = y, c
		}
	}
	return best, bestCount > 0
}
