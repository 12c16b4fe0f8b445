package report

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"guvohbot/pkg/extract"
)

func TestWriteXLSX(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.xlsx")
	rows := []Row{
		{File: "a.jpg", Record: extract.Record{Number: "01A123BC", Telefon: "901234567"}},
		{File: "b.jpg", Err: "ocr: boom"},
	}
	if err := WriteXLSX(p, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := excelize.OpenFile(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	got, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected header + 2 rows got %d", len(got))
	}
	if got[0][0] != "File" || got[0][5] != "Tugallangan_sana" || got[0][6] != "Error" {
		t.Fatalf("unexpected header %v", got[0])
	}
	if got[1][1] != "01A123BC" || got[1][4] != "901234567" {
		t.Fatalf("unexpected first row %v", got[1])
	}
	if got[2][6] != "ocr: boom" {
		t.Fatalf("error column missing in %v", got[2])
	}
}
