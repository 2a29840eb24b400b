package packager

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackage_SplitsCleanAndFallado(t *testing.T) {
	result, err := Package([]TableOutput{
		{TableName: "Azure Room 4", Text: "clean text", Clean: true, Validated: true},
		{TableName: "Rust Room 1", Text: "dirty text", Clean: false, Validated: true, ResidualAnonIDs: []string{"e3efcaed"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.ResolvedArchive)
	require.NotEmpty(t, result.FalladoArchive)
	require.Len(t, result.Outcomes, 2)

	zr, err := zip.NewReader(bytes.NewReader(result.ResolvedArchive), int64(len(result.ResolvedArchive)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	require.Equal(t, "Azure_Room_4_resolved.txt", zr.File[0].Name)

	zr2, err := zip.NewReader(bytes.NewReader(result.FalladoArchive), int64(len(result.FalladoArchive)))
	require.NoError(t, err)
	require.Len(t, zr2.File, 1)
	require.Equal(t, "Rust_Room_1_fallado.txt", zr2.File[0].Name)
}

func TestPackage_RefusesUnvalidatedTable(t *testing.T) {
	_, err := Package([]TableOutput{
		{TableName: "Azure Room 4", Text: "clean text", Clean: true, Validated: false},
	})
	require.ErrorIs(t, err, ErrUnvalidated)
}

func TestPackage_FalladoCarriesResidualHeader(t *testing.T) {
	result, err := Package([]TableOutput{
		{TableName: "Rust Room 1", Text: "body", Clean: false, Validated: true, ResidualAnonIDs: []string{"e3efcaed", "5641b4a0"}},
	})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(result.FalladoArchive), int64(len(result.FalladoArchive)))
	require.NoError(t, err)
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "e3efcaed, 5641b4a0")
	require.Contains(t, buf.String(), "body")
}

func TestPackage_EmptyArchiveWhenNoTablesInCategory(t *testing.T) {
	result, err := Package([]TableOutput{
		{TableName: "Azure Room 4", Text: "clean text", Clean: true, Validated: true},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.ResolvedArchive)
	require.Nil(t, result.FalladoArchive)
}

func TestPackage_NoLossInvariantEveryTableClassified(t *testing.T) {
	result, err := Package([]TableOutput{
		{TableName: "A", Text: "a", Clean: true, Validated: true},
		{TableName: "B", Text: "b", Clean: false, Validated: true},
		{TableName: "C", Text: "c", Clean: true, Validated: true},
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 3)
}
