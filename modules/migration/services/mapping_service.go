package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/stocker-io/stocker-sdk/modules/migration/domain/catalog"
)

// Column header patterns seen in exports from Turkish ERP systems. Matching
// is done on the normalized header, so "Vergi NO" and "vergi no" are equal.
var fieldPatterns = map[string][]string{
	"code":          {"kod", "kodu", "cari kod", "cari kodu", "stok kodu", "hesap kodu", "code"},
	"name":          {"ad", "adi", "unvan", "isim", "cari ad", "cari unvan", "stok adi", "name", "title"},
	"taxNumber":     {"vergi no", "vergi numarasi", "vkn", "tckn", "tc kimlik", "tax number"},
	"taxOffice":     {"vergi dairesi", "vd", "tax office"},
	"email":         {"eposta", "e-posta", "email", "mail"},
	"phone":         {"telefon", "tel", "gsm", "cep", "phone"},
	"address":       {"adres", "address"},
	"city":          {"sehir", "il", "city"},
	"district":      {"ilce", "semt", "district"},
	"country":       {"ulke", "country"},
	"postalCode":    {"posta kodu", "pk", "zip", "postal code"},
	"unit":          {"birim", "olcu birimi", "unit"},
	"barcode":       {"barkod", "barcode", "ean"},
	"categoryCode":  {"kategori", "kategori kodu", "grup kodu", "category"},
	"brandCode":     {"marka", "marka kodu", "brand"},
	"vatRate":       {"kdv", "kdv orani", "vat", "vat rate"},
	"purchasePrice": {"alis fiyati", "alis", "purchase price"},
	"salesPrice":    {"satis fiyati", "satis", "sales price"},
	"description":   {"aciklama", "izah", "description", "notes"},
	"creditLimit":   {"kredi limiti", "risk limiti", "credit limit"},
	"quantity":      {"miktar", "adet", "quantity", "qty"},
	"unitCost":      {"birim maliyet", "maliyet", "unit cost"},
	"warehouseCode": {"depo", "depo kodu", "ambar", "warehouse"},
	"productCode":   {"stok kodu", "urun kodu", "malzeme kodu", "product code"},
	"movementType":  {"hareket tipi", "hareket turu", "islem tipi", "movement type"},
	"date":          {"tarih", "islem tarihi", "date"},
	"documentNo":    {"belge no", "fis no", "evrak no", "document no"},
	"priceListCode": {"fiyat listesi", "liste kodu", "price list"},
	"price":         {"fiyat", "tutar", "price", "amount"},
	"validFrom":     {"gecerlilik", "baslangic tarihi", "valid from"},
	"currency":      {"doviz", "para birimi", "currency"},
	"iban":          {"iban"},
	"bankName":      {"banka", "banka adi", "bank"},
	"accountCode":   {"cari kod", "hesap kodu", "account code"},
	"parentCode":    {"ust kategori", "ust grup", "parent"},
}

var turkishReplacer = strings.NewReplacer(
	"ı", "i", "İ", "i", "ş", "s", "Ş", "s",
	"ğ", "g", "Ğ", "g", "ü", "u", "Ü", "u",
	"ö", "o", "Ö", "o", "ç", "c", "Ç", "c",
	"_", " ", ".", " ", "-", " ",
)

func normalizeHeader(s string) string {
	s = turkishReplacer.Replace(strings.TrimSpace(s))
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

type MappingSuggestion struct {
	SourceColumn string  `json:"source_column"`
	TargetField  string  `json:"target_field"`
	Confidence   float64 `json:"confidence"`
}

type MappingService struct {
	sessions SessionRepository
	tx       TxRunner
}

func NewMappingService(sessions SessionRepository, tx TxRunner) *MappingService {
	return &MappingService{sessions: sessions, tx: tx}
}

// Suggest proposes a target field for each source column of the declared
// entity type. Columns with no plausible match are omitted.
func (s *MappingService) Suggest(ctx context.Context, tenantID, sessionID uuid.UUID, entityType string, columns []string) ([]MappingSuggestion, error) {
	if len(columns) == 0 {
		return nil, validationError("source columns are required")
	}
	fields, err := catalog.FieldsFor(entityType)
	if err != nil {
		return nil, validationError(err.Error())
	}

	declared, err := inTx(ctx, s.tx, tenantID, func(txCtx context.Context) (bool, error) {
		sess, err := s.sessions.GetByID(txCtx, tenantID, sessionID)
		if err != nil {
			return false, mapPgError(err)
		}
		return sess.HasEntityType(entityType), nil
	})
	if err != nil {
		return nil, err
	}
	if !declared {
		return nil, validationError("entity type not declared for this session: " + entityType)
	}

	suggestions := make([]MappingSuggestion, 0, len(columns))
	taken := make(map[string]struct{}, len(fields))
	for _, column := range columns {
		best, confidence := matchColumn(column, fields, taken)
		if best == "" {
			continue
		}
		taken[best] = struct{}{}
		suggestions = append(suggestions, MappingSuggestion{
			SourceColumn: column,
			TargetField:  best,
			Confidence:   confidence,
		})
	}
	return suggestions, nil
}

func matchColumn(column string, fields []catalog.Field, taken map[string]struct{}) (string, float64) {
	normalized := normalizeHeader(column)
	if normalized == "" {
		return "", 0
	}

	var best string
	var bestScore float64
	for _, field := range fields {
		if _, used := taken[field.Name]; used {
			continue
		}
		score := scoreField(normalized, field)
		if score > bestScore {
			best = field.Name
			bestScore = score
		}
	}
	if bestScore < 0.5 {
		return "", 0
	}
	return best, bestScore
}

func scoreField(normalized string, field catalog.Field) float64 {
	if normalized == normalizeHeader(field.Name) || normalized == normalizeHeader(field.Label) {
		return 1.0
	}
	for _, pattern := range fieldPatterns[field.Name] {
		pattern = normalizeHeader(pattern)
		if normalized == pattern {
			return 0.95
		}
		if strings.Contains(normalized, pattern) {
			return 0.75
		}
	}
	return 0
}
