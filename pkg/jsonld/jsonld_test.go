package jsonld

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTMLCollectsBlocks(t *testing.T) {
	body := []byte(`<html><head>
<script type="application/ld+json">{"@type":"RealEstateAgent","name":"Jane Doe"}</script>
<script type="APPLICATION/LD+JSON">[{"@type":"Offer","price":450000},{"@type":"Place"}]</script>
<script type="application/ld+json">{"@context":"https://schema.org","@graph":[{"@type":"House"}]}</script>
<script type="text/javascript">var x = {"@type":"Ignored"};</script>
</head></html>`)

	doc, err := FromHTML(body)
	require.NoError(t, err)
	assert.Empty(t, doc.Errors)
	assert.Len(t, doc.Blocks, 3)
	require.Len(t, doc.Objects, 5)
	assert.Equal(t, "Jane Doe", String(doc.Objects[0]["name"]))
	assert.True(t, HasType(doc.Objects[1], "offer"))
	assert.Equal(t, "450000", String(doc.Objects[1]["price"]))
	assert.True(t, HasType(doc.Objects[4], "House"))
}

func TestMalformedBlockIsSkipped(t *testing.T) {
	body := []byte(`<html>
<script type="application/ld+json">{"@type": "Offer", "price": </script>
<script type="application/ld+json">{"@type":"Person","name":"Ok"}</script>
</html>`)

	doc, err := FromHTML(body)
	require.NoError(t, err)
	require.Len(t, doc.Errors, 1)
	var perr *ParseError
	assert.True(t, errors.As(doc.Errors[0], &perr))
	require.Len(t, doc.Objects, 1)
	assert.Equal(t, "Ok", String(doc.Objects[0]["name"]))
}

func TestDecodeBlock(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"single object", `{"a":1}`, 1, false},
		{"cdata wrapped", "//<![CDATA[\n{\"a\":1}\n//]]>", 1, false},
		{"concatenated objects", `{"a":1}{"b":2}`, 2, false},
		{"trailing semicolon", `{"a":1};`, 1, false},
		{"junk between objects", `{"a":1} , {"b":"x}"}`, 2, true},
		{"empty", "   ", 0, false},
		{"broken", `{"a":`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := DecodeBlock(tt.raw)
			assert.Len(t, values, tt.want)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"@type": ["Product", "SingleFamilyResidence"],
		"offers": [{"priceSpecification": {"price": "1,200,000"}}],
		"affiliation": {"@type": "Organization", "name": "Acme Realty"},
		"address": {"addressLocality": " Austin "}
	}`), &obj))

	assert.Equal(t, []string{"product", "singlefamilyresidence"}, Types(obj))
	assert.True(t, HasType(obj, "singleFamilyResidence"))
	assert.True(t, TypeHasSuffix(obj, "residence"))
	assert.Equal(t, "1,200,000", String(Get(obj, "offers", "priceSpecification", "price")))
	assert.Equal(t, "Acme Realty", String(obj["affiliation"]))
	assert.Equal(t, "Austin", String(Get(obj, "address", "addressLocality")))
	assert.Nil(t, Get(obj, "missing", "key"))
}

func TestWalkOrder(t *testing.T) {
	var v any
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id": "1", "b": {"id": "1b"}, "a": {"id": "1a"}},
		{"id": "2"}
	]`), &v))

	var ids []string
	Walk(v, func(obj map[string]any) bool {
		ids = append(ids, String(obj["id"]))
		return true
	})
	assert.Equal(t, []string{"1", "1a", "1b", "2"}, ids)

	ids = nil
	Walk(v, func(obj map[string]any) bool {
		ids = append(ids, String(obj["id"]))
		return false
	})
	assert.Equal(t, []string{"1", "2"}, ids)
}
