package extract

import (
	"strings"
	"testing"
)

const sampleDocument = `Guvohnoma: AAF3799360
Davlat raqami: 01 A 123 BC.
Rusumi: CHEVROLET COBALT.
Tel: 901234567.
Tugallangan sana: 12.05.2023`

func TestExtractAllDocument(t *testing.T) {
	rec := ExtractAll(sampleDocument)
	want := Record{
		Number:    "01A123BC",
		Rusumi:    "CHEVROLET",
		Guvohnoma: "AAF3799360",
		// digits are joined across the whole text before the phone search
		Telefon:         "379936001123",
		TugallanganSana: "12.05.2023",
	}
	if rec != want {
		t.Fatalf("ExtractAll mismatch\n got %+v\nwant %+v", rec, want)
	}
	if rec.Empty() {
		t.Fatalf("record should not be empty")
	}
}

func TestExtractAllIsDeterministic(t *testing.T) {
	if ExtractAll(sampleDocument) != ExtractAll(sampleDocument) {
		t.Fatalf("ExtractAll returned different records for the same text")
	}
}

func TestFormatReplyLine(t *testing.T) {
	rec := ExtractAll(sampleDocument)
	got := FormatReply(rec, sampleDocument)
	want := "01A123BC  CHEVROLET  AAF3799360  379936001123  12.05.2023"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFormatReplyTrimsMissingEdges(t *testing.T) {
	got := FormatReply(Record{Rusumi: "KIA"}, "kia")
	if got != "KIA" {
		t.Fatalf("expected trimmed single value got %q", got)
	}
	got = FormatReply(Record{Number: "01A123BC", Telefon: "901234567"}, "")
	if got != "01A123BC      901234567" {
		t.Fatalf("inner gaps must be kept, got %q", got)
	}
}

func TestFormatReplyDiagnostic(t *testing.T) {
	text := strings.Repeat("a. ", 700)
	rec := ExtractAll(text)
	if !rec.Empty() {
		t.Fatalf("expected empty record got %+v", rec)
	}
	got := FormatReply(rec, text)
	if !strings.HasPrefix(got, NothingFound) {
		t.Fatalf("diagnostic reply missing header")
	}
	tail := strings.TrimPrefix(got, NothingFound)
	if tail != text[:DiagnosticLimit] {
		t.Fatalf("diagnostic tail has %d chars, want first %d of input", len(tail), DiagnosticLimit)
	}
}

func TestFormatReplyDiagnosticCountsRunes(t *testing.T) {
	text := strings.Repeat("ж", 1600)
	got := FormatReply(ExtractAll(text), text)
	tail := strings.TrimPrefix(got, NothingFound)
	if n := len([]rune(tail)); n != DiagnosticLimit {
		t.Fatalf("expected %d runes got %d", DiagnosticLimit, n)
	}
}

func TestFormatReplyEmptyText(t *testing.T) {
	if got := FormatReply(ExtractAll(""), ""); got != NothingFound {
		t.Fatalf("expected bare header got %q", got)
	}
}

func TestFormatReplyDiagnosticOnlyWhenEmpty(t *testing.T) {
	for _, rec := range []Record{{Number: "x"}, {Rusumi: "x"}, {Guvohnoma: "x"}, {Telefon: "x"}, {TugallanganSana: "x"}} {
		if strings.HasPrefix(FormatReply(rec, "raw"), NothingFound) {
			t.Fatalf("record %+v is not empty but got diagnostic reply", rec)
		}
	}
}

func TestFieldsOrder(t *testing.T) {
	labels := []string{}
	for _, f := range (Record{}).Fields() {
		labels = append(labels, f.Label)
	}
	if strings.Join(labels, ",") != "Number,Rusumi,Guvohnoma,Telefon,Tugallangan_sana" {
		t.Fatalf("unexpected field order %v", labels)
	}
}
