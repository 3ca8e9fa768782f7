// Package export produces an XLSX index of the archive: one row per
// archived document, for handing to accountants and auditors.
package export

import (
	"fmt"
	"time"

	"github.com/margot-dms/margot/internal/models"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Catalog is the read side of the archive the exporter walks.
type Catalog interface {
	ListSenders() ([]string, error)
	ListDocuments(sender string) ([]string, error)
	Load(sender, id string) (*models.Document, error)
}

// Service produces XLSX bytes for archive exports.
type Service struct {
	catalog Catalog
	logger  *zap.Logger
}

// NewService creates an exporter over the archive catalog.
func NewService(catalog Catalog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{catalog: catalog, logger: logger}
}

// ArchiveIndexXLSX returns an XLSX workbook listing every archived
// document, grouped by sender folder, documents in id order.
func (s *Service) ArchiveIndexXLSX() ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Documents"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []string{
		"Document ID",
		"Sender",
		"Date Sent",
		"Type",
		"Subject",
		"Amount",
		"IBAN",
		"Due Date",
		"Complete",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	senders, err := s.catalog.ListSenders()
	if err != nil {
		return nil, fmt.Errorf("list senders: %w", err)
	}

	row := 2
	count := 0
	for _, sender := range senders {
		ids, err := s.catalog.ListDocuments(sender)
		if err != nil {
			return nil, fmt.Errorf("list documents for %s: %w", sender, err)
		}
		for _, id := range ids {
			doc, err := s.catalog.Load(sender, id)
			if err != nil {
				s.logger.Warn("skipping unreadable record",
					zap.String("sender", sender), zap.String("id", id), zap.Error(err))
				continue
			}
			write := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			write(1, doc.ID)
			write(2, doc.Sender)
			write(3, doc.DateSent)
			write(4, string(doc.Type))
			write(5, doc.Subject)
			if doc.Payment != nil {
				if doc.Payment.Amount != nil {
					write(6, *doc.Payment.Amount)
				}
				if doc.Payment.IBAN != nil {
					write(7, *doc.Payment.IBAN)
				}
				if doc.Payment.DueDate != nil {
					write(8, *doc.Payment.DueDate)
				}
			}
			write(9, doc.InformationComplete)
			row++
			count++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("archive index exported",
		zap.Int("documents", count),
		zap.Duration("elapsed", time.Since(start)),
	)
	return buf.Bytes(), nil
}
