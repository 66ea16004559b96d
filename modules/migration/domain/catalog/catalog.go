package catalog

import "fmt"

// Entity types a migration session can stage.
const (
	EntityCustomer       = "customer"
	EntitySupplier       = "supplier"
	EntityProduct        = "product"
	EntityCategory       = "category"
	EntityBrand          = "brand"
	EntityWarehouse      = "warehouse"
	EntityUnit           = "unit"
	EntityContact        = "contact"
	EntityAddress        = "address"
	EntityBankAccount    = "bank_account"
	EntityOpeningBalance = "opening_balance"
	EntityStockMovement  = "stock_movement"
	EntityPriceList      = "price_list"
)

// Source systems rows can originate from. Only affects bookkeeping and
// mapping suggestions, not validation.
const (
	SourceExcel   = "excel"
	SourceLogo    = "logo"
	SourceETA     = "eta"
	SourceMikro   = "mikro"
	SourceNetsis  = "netsis"
	SourceParasut = "parasut"
	SourceOther   = "other"
)

var sourceTypes = map[string]struct{}{
	SourceExcel:   {},
	SourceLogo:    {},
	SourceETA:     {},
	SourceMikro:   {},
	SourceNetsis:  {},
	SourceParasut: {},
	SourceOther:   {},
}

func ValidSourceType(s string) bool {
	_, ok := sourceTypes[s]
	return ok
}

// Field value kinds drive both validation and the generated templates.
const (
	KindText      = "text"
	KindDecimal   = "decimal"
	KindDate      = "date"
	KindEmail     = "email"
	KindTaxNumber = "tax_number"
	KindVatRate   = "vat_rate"
)

type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
	Required bool   `json:"required"`
}

var entityFields = map[string][]Field{
	EntityCustomer: {
		{Name: "code", Label: "Customer Code", Kind: KindText, Required: true},
		{Name: "name", Label: "Customer Name", Kind: KindText, Required: true},
		{Name: "taxNumber", Label: "Tax Number", Kind: KindTaxNumber},
		{Name: "taxOffice", Label: "Tax Office", Kind: KindText},
		{Name: "email", Label: "E-Mail", Kind: KindEmail},
		{Name: "phone", Label: "Phone", Kind: KindText},
		{Name: "address", Label: "Address", Kind: KindText},
		{Name: "city", Label: "City", Kind: KindText},
		{Name: "country", Label: "Country", Kind: KindText},
		{Name: "creditLimit", Label: "Credit Limit", Kind: KindDecimal},
	},
	EntitySupplier: {
		{Name: "code", Label: "Supplier Code", Kind: KindText, Required: true},
		{Name: "name", Label: "Supplier Name", Kind: KindText, Required: true},
		{Name: "taxNumber", Label: "Tax Number", Kind: KindTaxNumber},
		{Name: "taxOffice", Label: "Tax Office", Kind: KindText},
		{Name: "email", Label: "E-Mail", Kind: KindEmail},
		{Name: "phone", Label: "Phone", Kind: KindText},
		{Name: "address", Label: "Address", Kind: KindText},
		{Name: "city", Label: "City", Kind: KindText},
		{Name: "country", Label: "Country", Kind: KindText},
	},
	EntityProduct: {
		{Name: "code", Label: "Product Code", Kind: KindText, Required: true},
		{Name: "name", Label: "Product Name", Kind: KindText, Required: true},
		{Name: "unit", Label: "Unit", Kind: KindText, Required: true},
		{Name: "barcode", Label: "Barcode", Kind: KindText},
		{Name: "categoryCode", Label: "Category Code", Kind: KindText},
		{Name: "brandCode", Label: "Brand Code", Kind: KindText},
		{Name: "vatRate", Label: "VAT Rate", Kind: KindVatRate},
		{Name: "purchasePrice", Label: "Purchase Price", Kind: KindDecimal},
		{Name: "salesPrice", Label: "Sales Price", Kind: KindDecimal},
		{Name: "description", Label: "Description", Kind: KindText},
	},
	EntityCategory: {
		{Name: "code", Label: "Category Code", Kind: KindText, Required: true},
		{Name: "name", Label: "Category Name", Kind: KindText, Required: true},
		{Name: "parentCode", Label: "Parent Category Code", Kind: KindText},
	},
	EntityBrand: {
		{Name: "code", Label: "Brand Code", Kind: KindText, Required: true},
		{Name: "name", Label: "Brand Name", Kind: KindText, Required: true},
	},
	EntityWarehouse: {
		{Name: "code", Label: "Warehouse Code", Kind: KindText, Required: true},
		{Name: "name", Label: "Warehouse Name", Kind: KindText, Required: true},
		{Name: "address", Label: "Address", Kind: KindText},
		{Name: "city", Label: "City", Kind: KindText},
	},
	EntityUnit: {
		{Name: "code", Label: "Unit Code", Kind: KindText, Required: true},
		{Name: "name", Label: "Unit Name", Kind: KindText, Required: true},
	},
	EntityContact: {
		{Name: "accountCode", Label: "Account Code", Kind: KindText, Required: true},
		{Name: "name", Label: "Contact Name", Kind: KindText, Required: true},
		{Name: "email", Label: "E-Mail", Kind: KindEmail},
		{Name: "phone", Label: "Phone", Kind: KindText},
		{Name: "title", Label: "Title", Kind: KindText},
	},
	EntityAddress: {
		{Name: "accountCode", Label: "Account Code", Kind: KindText, Required: true},
		{Name: "address", Label: "Address", Kind: KindText, Required: true},
		{Name: "city", Label: "City", Kind: KindText},
		{Name: "district", Label: "District", Kind: KindText},
		{Name: "country", Label: "Country", Kind: KindText},
		{Name: "postalCode", Label: "Postal Code", Kind: KindText},
	},
	EntityBankAccount: {
		{Name: "accountCode", Label: "Account Code", Kind: KindText, Required: true},
		{Name: "bankName", Label: "Bank Name", Kind: KindText, Required: true},
		{Name: "iban", Label: "IBAN", Kind: KindText},
		{Name: "currency", Label: "Currency", Kind: KindText},
	},
	EntityOpeningBalance: {
		{Name: "productCode", Label: "Product Code", Kind: KindText, Required: true},
		{Name: "warehouseCode", Label: "Warehouse Code", Kind: KindText, Required: true},
		{Name: "quantity", Label: "Quantity", Kind: KindDecimal, Required: true},
		{Name: "unitCost", Label: "Unit Cost", Kind: KindDecimal},
	},
	EntityStockMovement: {
		{Name: "productCode", Label: "Product Code", Kind: KindText, Required: true},
		{Name: "warehouseCode", Label: "Warehouse Code", Kind: KindText, Required: true},
		{Name: "quantity", Label: "Quantity", Kind: KindDecimal, Required: true},
		{Name: "movementType", Label: "Movement Type", Kind: KindText, Required: true},
		{Name: "date", Label: "Date", Kind: KindDate, Required: true},
		{Name: "documentNo", Label: "Document No", Kind: KindText},
	},
	EntityPriceList: {
		{Name: "productCode", Label: "Product Code", Kind: KindText, Required: true},
		{Name: "priceListCode", Label: "Price List Code", Kind: KindText, Required: true},
		{Name: "price", Label: "Price", Kind: KindDecimal, Required: true},
		{Name: "currency", Label: "Currency", Kind: KindText},
		{Name: "validFrom", Label: "Valid From", Kind: KindDate},
	},
}

func ValidEntityType(entityType string) bool {
	_, ok := entityFields[entityType]
	return ok
}

func FieldsFor(entityType string) ([]Field, error) {
	fields, ok := entityFields[entityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity type: %q", entityType)
	}
	return fields, nil
}

func EntityTypes() []string {
	return []string{
		EntityCustomer, EntitySupplier, EntityProduct, EntityCategory,
		EntityBrand, EntityWarehouse, EntityUnit, EntityContact,
		EntityAddress, EntityBankAccount, EntityOpeningBalance,
		EntityStockMovement, EntityPriceList,
	}
}
