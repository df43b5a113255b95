package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmkarTuptewar/template-generator/internal/core/common"
)

func TestOutputRecordShapes(t *testing.T) {
	data, err := common.Marshal(RecordFor("pune <> goa", ExtractionResult{Template: "{SOURCE_NAME} <> {DESTINATION_NAME}"}))
	require.NoError(t, err)
	assert.Equal(t, `{"query":"pune <> goa","template":"{SOURCE_NAME} <> {DESTINATION_NAME}"}`, string(data))

	data, err = json.Marshal(RecordFor("hello", ExtractionResult{Ignore: true, Template: "dropped"}))
	require.NoError(t, err)
	assert.Equal(t, `{"query":"hello","ignore":true}`, string(data))

	data, err = json.Marshal(RecordFor("कल बस", ExtractionResult{HasTemplate: true}))
	require.NoError(t, err)
	assert.Equal(t, `{"query":"कल बस","template":""}`, string(data))
}

func TestCatalogKeepsLabelOrder(t *testing.T) {
	c := Catalog{
		Order:  []string{"SOURCE_NAME", "DEPARTURE_DATE", "MISSING"},
		Values: map[string][]string{"DEPARTURE_DATE": {"today"}, "SOURCE_NAME": {"Pune"}, "ADD_ONS": nil},
	}
	assert.Equal(t, []string{"SOURCE_NAME", "DEPARTURE_DATE", "ADD_ONS"}, c.Labels())

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"SOURCE_NAME":["Pune"],"DEPARTURE_DATE":["today"],"ADD_ONS":[]}`, string(data))

	var back Catalog
	require.NoError(t, json.Unmarshal([]byte(`{"Z": ["a", 1], "A": "not a list", "M": ["b"]}`), &back))
	assert.Equal(t, []string{"Z", "M"}, back.Order)
	assert.Equal(t, []string{"a"}, back.Values["Z"])
	assert.NotContains(t, back.Values, "A")
}

func TestCatalogDropsNullItems(t *testing.T) {
	var c Catalog
	require.NoError(t, json.Unmarshal([]byte(`{"OPERATOR": [null, "Orange Tours", null], "ADD_ONS": [null]}`), &c))
	assert.Equal(t, []string{"Orange Tours"}, c.Values["OPERATOR"])
	assert.Equal(t, []string{}, c.Values["ADD_ONS"])
	assert.Equal(t, 1, c.Len())
}

func TestCatalogCloneIsDeep(t *testing.T) {
	c := Catalog{Order: []string{"L"}, Values: map[string][]string{"L": {"x"}}}
	cp := c.Clone()
	cp.Values["L"][0] = "changed"
	cp.Order[0] = "other"
	assert.Equal(t, "x", c.Values["L"][0])
	assert.Equal(t, "L", c.Order[0])
	assert.Equal(t, 1, c.Len())
}
