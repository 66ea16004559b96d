package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/catalog"
	"github.com/stocker-io/stocker-sdk/modules/migration/domain/record"
)

// VAT rates accepted by the target system. Anything else is flagged as a
// warning rather than an error, since legacy exports often carry stale rates.
var validVatRates = map[int64]struct{}{0: {}, 1: {}, 8: {}, 10: {}, 18: {}, 20: {}}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	time.RFC3339,
}

// ValidateRow checks one mapped row against the field catalog of its entity
// type and returns the resulting status with any messages.
func ValidateRow(entityType string, row map[string]string) (string, []record.ValidationMessage) {
	fields, err := catalog.FieldsFor(entityType)
	if err != nil {
		return record.StatusError, []record.ValidationMessage{{
			Field:    "",
			Severity: record.SeverityError,
			Message:  err.Error(),
		}}
	}

	var messages []record.ValidationMessage
	for _, field := range fields {
		value := strings.TrimSpace(row[field.Name])

		if value == "" {
			if field.Required {
				messages = append(messages, errorMessage(field.Name, "required field is missing"))
			}
			continue
		}

		switch field.Kind {
		case catalog.KindDecimal:
			if _, err := ParseDecimal(value); err != nil {
				messages = append(messages, errorMessage(field.Name, fmt.Sprintf("not a valid number: %q", value)))
			}
		case catalog.KindDate:
			if _, err := parseDate(value); err != nil {
				messages = append(messages, errorMessage(field.Name, fmt.Sprintf("not a valid date: %q", value)))
			}
		case catalog.KindEmail:
			if !strings.Contains(value, "@") {
				messages = append(messages, errorMessage(field.Name, fmt.Sprintf("not a valid e-mail address: %q", value)))
			}
		case catalog.KindTaxNumber:
			messages = appendTaxNumberMessages(messages, field.Name, value)
		case catalog.KindVatRate:
			messages = appendVatRateMessages(messages, field.Name, value)
		}
	}

	return statusFromMessages(messages), messages
}

func statusFromMessages(messages []record.ValidationMessage) string {
	status := record.StatusValid
	for _, m := range messages {
		if m.Severity == record.SeverityError {
			return record.StatusError
		}
		status = record.StatusWarning
	}
	return status
}

func errorMessage(field, message string) record.ValidationMessage {
	return record.ValidationMessage{Field: field, Severity: record.SeverityError, Message: message}
}

func warningMessage(field, message string) record.ValidationMessage {
	return record.ValidationMessage{Field: field, Severity: record.SeverityWarning, Message: message}
}

// Tax numbers are 10 digits for companies and 11 for individuals. A wrong
// length is recoverable, non-digits are not.
func appendTaxNumberMessages(messages []record.ValidationMessage, field, value string) []record.ValidationMessage {
	for _, r := range value {
		if r < '0' || r > '9' {
			return append(messages, errorMessage(field, fmt.Sprintf("tax number must contain only digits: %q", value)))
		}
	}
	if len(value) != 10 && len(value) != 11 {
		return append(messages, warningMessage(field, fmt.Sprintf("tax number should be 10 or 11 digits, got %d", len(value))))
	}
	return messages
}

func appendVatRateMessages(messages []record.ValidationMessage, field, value string) []record.ValidationMessage {
	rate, err := ParseDecimal(value)
	if err != nil {
		return append(messages, errorMessage(field, fmt.Sprintf("not a valid VAT rate: %q", value)))
	}
	if !rate.IsInteger() {
		return append(messages, warningMessage(field, fmt.Sprintf("unusual VAT rate: %s", rate)))
	}
	if _, ok := validVatRates[rate.IntPart()]; !ok {
		return append(messages, warningMessage(field, fmt.Sprintf("unusual VAT rate: %s", rate)))
	}
	return messages
}

// ParseDecimal accepts both "1234.56" and the Turkish "1.234,56" notation.
func ParseDecimal(value string) (decimal.Decimal, error) {
	normalized := strings.TrimSpace(value)
	if strings.Contains(normalized, ",") {
		normalized = strings.ReplaceAll(normalized, ".", "")
		normalized = strings.ReplaceAll(normalized, ",", ".")
	}
	return decimal.NewFromString(normalized)
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", value)
}
