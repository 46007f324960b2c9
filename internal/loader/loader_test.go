package loader

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

// writeWorkbook saves rows to a new workbook, row 1 being the header.
func writeWorkbook(t *testing.T, name string, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("invalid coordinates: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("failed to set row %d: %v", i+1, err)
		}
	}

	path := filepath.Join(t.TempDir(), name)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("failed to save workbook: %v", err)
	}
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadRecipients_Excel(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, "hr_emails.xlsx", [][]any{
		{"Name", "Email"},
		{"Alice", "a@x.com"},
		{"Bob", ""},
		{"Carol", "b@x.com"},
		{"Dan"},
	})

	got, err := LoadRecipients(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a@x.com", "b@x.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recipients: got %v, want %v", got, want)
	}
}

func TestLoadRecipients_ExcelKeepsDuplicatesAndOrder(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, "list.xlsx", [][]any{
		{"Email"},
		{"c@x.com"},
		{"a@x.com"},
		{"c@x.com"},
		{"  b@x.com  "},
		{"   "},
	})

	got, err := LoadRecipients(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"c@x.com", "a@x.com", "c@x.com", "b@x.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recipients: got %v, want %v", got, want)
	}
}

func TestLoadRecipients_ExcelNamedSheet(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	if _, err := f.NewSheet("Contacts"); err != nil {
		t.Fatalf("failed to add sheet: %v", err)
	}
	if err := f.SetSheetRow("Contacts", "A1", &[]any{"Email"}); err != nil {
		t.Fatalf("failed to set header: %v", err)
	}
	if err := f.SetSheetRow("Contacts", "A2", &[]any{"hr@corp.com"}); err != nil {
		t.Fatalf("failed to set row: %v", err)
	}
	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("failed to save workbook: %v", err)
	}
	f.Close()

	got, err := LoadRecipients(path, WithSheet("Contacts"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"hr@corp.com"}) {
		t.Errorf("recipients: got %v", got)
	}

	// The first sheet has no Email header.
	_, err = LoadRecipients(path)
	if !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("default sheet: got %v, want ErrColumnNotFound", err)
	}

	_, err = LoadRecipients(path, WithSheet("Missing"))
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindRead {
		t.Errorf("missing sheet: got %v, want KindRead", err)
	}
}

func TestLoadRecipients_CSV(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "list.csv", "\ufeffName,Email,Team\nAlice,a@x.com,QA\nBob,,Dev\nCarol,b@x.com\nDan\n")

	got, err := LoadRecipients(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a@x.com", "b@x.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recipients: got %v, want %v", got, want)
	}
}

func TestLoadRecipients_PaddedHeader(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "list.csv", "Name, Email \nAlice, a@x.com\n")

	got, err := LoadRecipients(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a@x.com"}) {
		t.Errorf("recipients: got %v, want [a@x.com]", got)
	}
}

func TestLoadRecipients_CustomColumn(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "list.csv", "Email,Work Email\nprivate@x.com,work@x.com\n")

	got, err := LoadRecipients(path, WithColumn("Work Email"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"work@x.com"}) {
		t.Errorf("recipients: got %v", got)
	}

	got, err = LoadRecipients(path, WithColumn(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"private@x.com"}) {
		t.Errorf("empty column option should keep default, got %v", got)
	}
}

func TestLoadRecipients_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name     string
		path     string
		wantKind Kind
		wantErr  error
	}{
		{
			name:     "missing file",
			path:     filepath.Join(dir, "hr_emails.xlsx"),
			wantKind: KindNotFound,
		},
		{
			name:     "missing column",
			path:     writeFile(t, "names.csv", "Name\nAlice\n"),
			wantKind: KindRead,
			wantErr:  ErrColumnNotFound,
		},
		{
			name:     "empty csv",
			path:     writeFile(t, "empty.csv", ""),
			wantKind: KindRead,
			wantErr:  ErrColumnNotFound,
		},
		{
			name:     "malformed csv",
			path:     writeFile(t, "bad.csv", "Email\n\"unterminated\n"),
			wantKind: KindRead,
		},
		{
			name:     "corrupt workbook",
			path:     writeFile(t, "corrupt.xlsx", "this is not a zip archive"),
			wantKind: KindRead,
		},
		{
			name:     "unsupported extension",
			path:     writeFile(t, "list.txt", "Email\na@x.com\n"),
			wantKind: KindRead,
			wantErr:  ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := LoadRecipients(tt.path)
			if err == nil {
				t.Fatalf("expected error, got recipients %v", got)
			}

			var lerr *Error
			if !errors.As(err, &lerr) {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if lerr.Kind != tt.wantKind {
				t.Errorf("Kind: got %v, want %v", lerr.Kind, tt.wantKind)
			}
			if lerr.Path != tt.path {
				t.Errorf("Path: got %q, want %q", lerr.Path, tt.path)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v in chain, got %v", tt.wantErr, err)
			}
			if IsNotFound(err) != (tt.wantKind == KindNotFound) {
				t.Errorf("IsNotFound: got %v", IsNotFound(err))
			}
		})
	}
}

func TestTableColumn_DuplicateHeader(t *testing.T) {
	t.Parallel()

	table := newTable([][]string{
		{"Email", " Email "},
		{"first@x.com", "second@x.com"},
		{"", "only-second@x.com"},
	})

	got, err := table.Column("Email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"first@x.com"}) {
		t.Errorf("leftmost column should win, got %v", got)
	}
}

func TestLoadBody(t *testing.T) {
	t.Parallel()

	content := "Dear Hiring Manager,\n\nI am applying for the QA Engineer role.\n\nRegards\n"
	path := writeFile(t, "input.txt", content)

	got, err := LoadBody(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != content {
		t.Errorf("body: got %q, want %q", got, content)
	}
}

func TestLoadBody_NotFound(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.txt")
	_, err := LoadBody(path)
	if !IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	want := "the body file " + path + " was not found"
	if err.Error() != want {
		t.Errorf("message: got %q, want %q", err.Error(), want)
	}
}

func TestLoadBody_Directory(t *testing.T) {
	t.Parallel()

	_, err := LoadBody(t.TempDir())
	var lerr *Error
	if !errors.As(err, &lerr) || lerr.Kind != KindRead {
		t.Fatalf("expected KindRead error, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()

	tests := map[Kind]string{
		KindNotFound: "not found",
		KindRead:     "read failed",
		Kind(0):      "unknown",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String(): got %q, want %q", kind, got, want)
		}
	}
}
