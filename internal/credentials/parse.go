package credentials

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/xuri/excelize/v2"
)

type field int

const (
	fieldName field = iota
	fieldURL
	fieldUsername
	fieldPassword
	fieldNotes
)

func (f field) String() string {
	switch f {
	case fieldName:
		return "name"
	case fieldURL:
		return "url"
	case fieldUsername:
		return "username"
	case fieldPassword:
		return "password"
	default:
		return "notes"
	}
}

// headerSynonyms are matched as case-insensitive substrings of the header cell.
var headerSynonyms = map[field][]string{
	fieldPassword: {"pass", "pwd", "パスワード", "暗証"},
	fieldURL:      {"url", "link", "website", "homepage", "リンク", "ホームページ"},
	fieldUsername: {"user", "login", "email", "e-mail", "mail", "account", "ユーザ", "ログイン", "アカウント", "メール"},
	fieldNotes:    {"note", "memo", "remark", "comment", "備考", "メモ", "注意"},
	fieldName:     {"site", "name", "service", "portal", "サイト", "名称", "名前", "サービス", "媒体"},
}

// exactHeaders only match when they are the whole header cell. "id" as a
// substring would hit unrelated headers such as "valid" or "width".
var exactHeaders = map[field][]string{
	fieldUsername: {"id"},
}

// claimOrder decides ties within a pass: each field, in this order, takes
// the left-most unclaimed column whose header matches. Whole-cell matches are
// claimed before substring matches, so "URL" wins the url field over
// "Website" and "User Name" still goes to username before site name.
var claimOrder = []field{fieldPassword, fieldURL, fieldUsername, fieldNotes, fieldName}

type columnMap map[field]int

func (m columnMap) has(f field) bool {
	_, ok := m[f]
	return ok
}

func (m columnMap) mandatory() bool {
	return m.has(fieldName) && m.has(fieldUsername) && m.has(fieldPassword)
}

func headerEquals(f field, header string) bool {
	for _, exact := range exactHeaders[f] {
		if header == exact {
			return true
		}
	}
	for _, syn := range headerSynonyms[f] {
		if header == syn {
			return true
		}
	}
	return false
}

func headerContains(f field, header string) bool {
	for _, syn := range headerSynonyms[f] {
		if strings.Contains(header, syn) {
			return true
		}
	}
	return false
}

// matchHeader maps fields to column indexes by fuzzy header matching
func matchHeader(header []string) columnMap {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	columns := make(columnMap)
	claimed := make([]bool, len(header))
	for _, matches := range []func(field, string) bool{headerEquals, headerContains} {
		for _, f := range claimOrder {
			if columns.has(f) {
				continue
			}
			for i, h := range normalized {
				if claimed[i] || h == "" {
					continue
				}
				if matches(f, h) {
					columns[f] = i
					claimed[i] = true
					break
				}
			}
		}
	}
	return columns
}

// positionalColumns is the fallback layout: name, user, pass, url
func positionalColumns() columnMap {
	return columnMap{
		fieldName:     0,
		fieldUsername: 1,
		fieldPassword: 2,
		fieldURL:      3,
	}
}

// parseRows converts a table (header first) into credentials. Rows missing a
// mandatory field are dropped.
func parseRows(source string, rows [][]string, logger *slog.Logger) ([]domain.SiteCredential, error) {
	rows = dropBlankRows(rows)
	if len(rows) < 2 {
		return nil, &FormatError{Source: source, Reason: fmt.Sprintf("need a header and at least one data row, got %d row(s)", len(rows))}
	}

	columns := matchHeader(rows[0])
	if !columns.mandatory() {
		logger.Debug("credential headers not recognized, using positional columns",
			"source", source, "header", rows[0])
		columns = positionalColumns()
	}
	logger.Debug("credential columns", "source", source, "columns", columns)

	cell := func(row []string, f field) string {
		i, ok := columns[f]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var creds []domain.SiteCredential
	for n, row := range rows[1:] {
		cred := domain.SiteCredential{
			SiteName: cell(row, fieldName),
			URL:      cell(row, fieldURL),
			Username: cell(row, fieldUsername),
			Password: cell(row, fieldPassword),
			Notes:    cell(row, fieldNotes),
		}
		if cred.SiteName == "" || cred.Username == "" || cred.Password == "" {
			logger.Debug("dropping incomplete credential row", "source", source, "row", n+2)
			continue
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func dropBlankRows(rows [][]string) [][]string {
	var kept [][]string
	for _, row := range rows {
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				kept = append(kept, row)
				break
			}
		}
	}
	return kept
}

// readRows loads the raw table from a spreadsheet or delimited text file
func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readSpreadsheet(path)
	case ".csv":
		return readDelimited(path, ',')
	case ".tsv":
		return readDelimited(path, '\t')
	case ".txt":
		return readDelimited(path, 0)
	default:
		return nil, &FormatError{Source: path, Reason: "unsupported file type"}
	}
}

func readSpreadsheet(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceUnavailableError{Source: path, Err: err}
	}
	defer f.Close()

	book, err := excelize.OpenReader(f)
	if err != nil {
		return nil, &FormatError{Source: path, Reason: err.Error()}
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, &FormatError{Source: path, Reason: "workbook has no sheets"}
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, &FormatError{Source: path, Reason: err.Error()}
	}
	return rows, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readDelimited parses delimited text. A zero delimiter is sniffed from the
// first line.
func readDelimited(path string, delim rune) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SourceUnavailableError{Source: path, Err: err}
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if delim == 0 {
		delim = sniffDelimiter(data)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, &FormatError{Source: path, Reason: err.Error()}
	}
	return rows, nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{'\t', ',', ';'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
