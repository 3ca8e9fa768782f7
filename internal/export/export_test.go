package export

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/margot-dms/margot/internal/models"
	"github.com/xuri/excelize/v2"
)

type fakeCatalog struct {
	docs map[string][]*models.Document
}

func (f *fakeCatalog) ListSenders() ([]string, error) {
	var senders []string
	for s := range f.docs {
		senders = append(senders, s)
	}
	return senders, nil
}

func (f *fakeCatalog) ListDocuments(sender string) ([]string, error) {
	var ids []string
	for _, d := range f.docs[sender] {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (f *fakeCatalog) Load(sender, id string) (*models.Document, error) {
	for _, d := range f.docs[sender] {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("not found: %s/%s", sender, id)
}

func TestArchiveIndexXLSX(t *testing.T) {
	amount := 120.5
	iban := "NL00ABCD1234567890"
	catalog := &fakeCatalog{docs: map[string][]*models.Document{
		"Acme_Corp": {
			{
				ID: "20240315-0001", Sender: "Acme Corp", DateSent: "2024-03-01",
				Subject: "Invoice 42", Type: models.TypeInvoice,
				Payment:             &models.Payment{Amount: &amount, IBAN: &iban},
				InformationComplete: true,
			},
			{
				ID: "20240315-0002", Sender: "Acme Corp", DateSent: "2024-03-02",
				Subject: "Receipt", Type: models.TypeReceipt,
				InformationComplete: true,
			},
		},
	}}

	svc := NewService(catalog, nil)
	raw, err := svc.ArchiveIndexXLSX()
	if err != nil {
		t.Fatalf("ArchiveIndexXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Documents")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2 documents", len(rows))
	}
	if rows[0][0] != "Document ID" || rows[0][3] != "Type" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "20240315-0001" || rows[1][3] != "invoice" {
		t.Errorf("first row = %v", rows[1])
	}
	if rows[1][5] != "120.5" {
		t.Errorf("amount cell = %q", rows[1][5])
	}
	// No payment block: the amount cell stays empty.
	if len(rows[2]) > 5 && rows[2][5] != "" {
		t.Errorf("second row amount = %q, want empty", rows[2][5])
	}
}

func TestArchiveIndexXLSXEmpty(t *testing.T) {
	svc := NewService(&fakeCatalog{docs: map[string][]*models.Document{}}, nil)
	raw, err := svc.ArchiveIndexXLSX()
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows("Documents")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want header only", len(rows))
	}
}
