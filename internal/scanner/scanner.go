// Package scanner walks a directory tree and finds pasted statement text
// files, inferring each file's statement month from its path or contents.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/stmtledger/internal/pipeline"
)

// Scanner walks a directory tree and finds statement paste files.
type Scanner struct {
	rootDir string
}

// New creates a scanner for the given root directory.
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// ScanResult is one found statement file with its inferred month.
type ScanResult struct {
	Path  string
	Year  int
	Month int
	Label string
}

var monthToken = regexp.MustCompile(`(\d{4})-(\d{2})`)

// Scan walks the directory tree and finds all statement text files.
// The month comes from the file or directory name when it carries a
// "YYYY-MM" token, else from the file's contents, else from now.
func (s *Scanner) Scan() ([]ScanResult, error) {
	rootDir := s.expandHome(s.rootDir)

	var results []ScanResult
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !s.isStatementFile(path) {
			return nil
		}

		result := ScanResult{Path: path, Label: labelFromPath(path)}
		result.Year, result.Month = s.inferMonth(path, rootDir)
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return results, nil
}

// isStatementFile checks for the paste-export extensions.
func (s *Scanner) isStatementFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".text"
}

// inferMonth resolves the statement month for one file. Path components
// win over file contents so an organized tree stays authoritative even
// when a statement prints a different date inside.
func (s *Scanner) inferMonth(path, rootDir string) (int, int) {
	relPath, err := filepath.Rel(rootDir, path)
	if err != nil {
		relPath = path
	}
	if m := monthToken.FindStringSubmatch(filepath.ToSlash(relPath)); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 {
			return year, month
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return time.Now().Year(), int(time.Now().Month())
	}
	return pipeline.InferMonth(string(data), time.Now())
}

// labelFromPath turns "downloads/2025-03_checking.txt" into a readable
// label like "2025-03 Checking".
func labelFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	base = strings.ReplaceAll(base, "-", " ")

	words := strings.Fields(base)
	for i, word := range words {
		if len(word) > 0 && word[0] >= 'a' && word[0] <= 'z' {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	label := strings.Join(words, " ")

	// Restore the month token's hyphen if the name started with one.
	if m := monthToken.FindString(filepath.Base(path)); m != "" {
		label = strings.Replace(label, strings.ReplaceAll(m, "-", " "), m, 1)
	}
	return label
}

// expandHome expands ~ to the home directory.
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
