package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMappingConfig(t *testing.T) {
	cfg, err := ParseMappingConfig(nil)
	require.NoError(t, err)
	require.Empty(t, cfg)

	cfg, err = ParseMappingConfig(json.RawMessage(`{"customer":{"Cari Kod":"code","Ünvan":"name"}}`))
	require.NoError(t, err)
	require.Equal(t, "code", cfg["customer"]["Cari Kod"])
	require.Equal(t, "name", cfg["customer"]["Ünvan"])

	_, err = ParseMappingConfig(json.RawMessage(`["not","a","map"]`))
	require.Error(t, err)
}

func TestMapRowWithMapping(t *testing.T) {
	raw := json.RawMessage(`{"Cari Kod":"C001","Ünvan":"Acme","Şube":"Merkez"}`)
	mapping := map[string]string{"Cari Kod": "code", "Ünvan": "name"}

	mapped, err := MapRow(raw, mapping)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"code": "C001", "name": "Acme"}, mapped)
}

func TestMapRowWithoutMappingKeepsColumns(t *testing.T) {
	raw := json.RawMessage(`{"code":"C001","name":"Acme"}`)

	mapped, err := MapRow(raw, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"code": "C001", "name": "Acme"}, mapped)
}

func TestMapRowStringifiesScalars(t *testing.T) {
	raw := json.RawMessage(`{"barcode":8690123456789,"price":12.5,"active":true,"note":null}`)

	mapped, err := MapRow(raw, nil)
	require.NoError(t, err)
	require.Equal(t, "8690123456789", mapped["barcode"])
	require.Equal(t, "12.5", mapped["price"])
	require.Equal(t, "true", mapped["active"])
	require.Equal(t, "", mapped["note"])
}

func TestMapRowRejectsNonObject(t *testing.T) {
	_, err := MapRow(json.RawMessage(`["a","b"]`), nil)
	require.Error(t, err)
}
