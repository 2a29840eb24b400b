// Package packager classifies rewritten per-table output by validator
// result and bundles clean and incomplete files into separate zip archives.
package packager

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/riverbend/handmask/internal/handmodel"
)

// ErrUnvalidated is returned if Package is asked to archive a table whose
// validator result was never recorded — packaging must never emit an
// archive referencing a file nothing has checked.
var ErrUnvalidated = errors.New("packager: table has no recorded validator result")

// ErrArchiveVerify is returned when the packager cannot re-open and walk
// its own freshly written archive.
var ErrArchiveVerify = errors.New("packager: archive failed post-write verification")

// TableOutput is one table's final rewritten text plus its validator
// verdict, ready for classification.
type TableOutput struct {
	TableName       string
	Text            string
	Clean           bool
	Validated       bool // false if no validator result was ever recorded
	ResidualAnonIDs []string
}

// Result is the packager's output: two archives (either may be empty if
// there was nothing in that category) plus the per-table classification
// record for the job store.
type Result struct {
	ResolvedArchive []byte
	FalladoArchive  []byte
	Outcomes        []handmodel.FileOutcome
}

// Package classifies every table output, writes "<table>_resolved.txt" or
// "<table>_fallado.txt" per table, and bundles each group into its own zip
// archive. Every input hand must appear in exactly one output file — the
// caller is responsible for ensuring TableOutput covers every table that
// had at least one hand.
func Package(tables []TableOutput) (Result, error) {
	sorted := make([]TableOutput, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TableName < sorted[j].TableName })

	var resolvedFiles, falladoFiles []namedFile
	var outcomes []handmodel.FileOutcome

	for _, t := range sorted {
		if !t.Validated {
			return Result{}, fmt.Errorf("%w: table %q", ErrUnvalidated, t.TableName)
		}

		filename := outputFilename(t.TableName, t.Clean)
		content := t.Text
		if !t.Clean {
			content = falladoHeader(t.ResidualAnonIDs) + content
		}

		outcomes = append(outcomes, handmodel.FileOutcome{
			TableName: t.TableName, Clean: t.Clean, OutputFilename: filename, ResidualAnonIDs: t.ResidualAnonIDs,
		})

		nf := namedFile{name: filename, content: content}
		if t.Clean {
			resolvedFiles = append(resolvedFiles, nf)
		} else {
			falladoFiles = append(falladoFiles, nf)
		}
	}

	resolvedArchive, err := buildAndVerify(resolvedFiles)
	if err != nil {
		return Result{}, err
	}
	falladoArchive, err := buildAndVerify(falladoFiles)
	if err != nil {
		return Result{}, err
	}

	return Result{ResolvedArchive: resolvedArchive, FalladoArchive: falladoArchive, Outcomes: outcomes}, nil
}

type namedFile struct {
	name    string
	content string
}

func outputFilename(tableName string, clean bool) string {
	suffix := "_fallado.txt"
	if clean {
		suffix = "_resolved.txt"
	}
	return sanitizeFilename(tableName) + suffix
}

func sanitizeFilename(tableName string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(tableName)
}

func falladoHeader(residual []string) string {
	if len(residual) == 0 {
		return ""
	}
	return fmt.Sprintf("# UNRESOLVED ANON IDS: %s\n", strings.Join(residual, ", "))
}

func buildAndVerify(files []namedFile) ([]byte, error) {
	if len(files) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, fmt.Errorf("packager: create entry %q: %w", f.name, err)
		}
		if _, err := w.Write([]byte(f.content)); err != nil {
			return nil, fmt.Errorf("packager: write entry %q: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("packager: close archive: %w", err)
	}

	if err := verify(buf.Bytes(), len(files)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// verify re-opens the just-written archive and walks every entry,
// confirming it reads back the expected number of files before the
// packager ever hands the bytes off to a caller.
func verify(data []byte, wantEntries int) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveVerify, err)
	}
	count := 0
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: opening entry %q: %v", ErrArchiveVerify, f.Name, err)
		}
		if _, err := io.Copy(io.Discard, rc); err != nil {
			rc.Close()
			return fmt.Errorf("%w: reading entry %q: %v", ErrArchiveVerify, f.Name, err)
		}
		rc.Close()
		count++
	}
	if count != wantEntries {
		return fmt.Errorf("%w: expected %d entries, found %d", ErrArchiveVerify, wantEntries, count)
	}
	return nil
}
