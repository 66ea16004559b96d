package services

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/catalog"
)

const templateSheet = "Data"

// TemplateService renders an empty upload template per entity type. Required
// columns are bolded, every column carries a comment describing the expected
// value.
type TemplateService struct{}

func NewTemplateService() *TemplateService {
	return &TemplateService{}
}

func (s *TemplateService) ExcelTemplate(entityType string) ([]byte, error) {
	fields, err := catalog.FieldsFor(entityType)
	if err != nil {
		return nil, validationError(err.Error())
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(templateSheet)
	if err != nil {
		return nil, internalError("failed to create template sheet", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, internalError("failed to drop default sheet", err)
	}

	requiredStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFF2CC"}},
	})
	if err != nil {
		return nil, internalError("failed to create header style", err)
	}
	optionalStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return nil, internalError("failed to create header style", err)
	}

	for i, field := range fields {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, internalError("failed to compute header cell", err)
		}
		if err := f.SetCellValue(templateSheet, cell, field.Label); err != nil {
			return nil, internalError("failed to write header", err)
		}

		style := optionalStyle
		if field.Required {
			style = requiredStyle
		}
		if err := f.SetCellStyle(templateSheet, cell, cell, style); err != nil {
			return nil, internalError("failed to style header", err)
		}

		comment := fmt.Sprintf("Field: %s\nType: %s", field.Name, field.Kind)
		if field.Required {
			comment += "\nRequired"
		}
		if err := f.AddComment(templateSheet, excelize.Comment{
			Cell:   cell,
			Author: "stocker",
			Paragraph: []excelize.RichTextRun{
				{Text: comment},
			},
		}); err != nil {
			return nil, internalError("failed to add header comment", err)
		}

		column, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, internalError("failed to compute column name", err)
		}
		if err := f.SetColWidth(templateSheet, column, column, 20); err != nil {
			return nil, internalError("failed to set column width", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, internalError("failed to render template", err)
	}
	return buf.Bytes(), nil
}
