package variant

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderXML = `<Order xmlns="urn:orders" xmlns:x="urn:extra" id="7">
  <Line sku="A1"><Qty>2</Qty></Line>
  <Line sku="B2"><Qty>1</Qty><Note>gift</Note></Line>
  <Memo lang="en">rush</Memo>
  <Empty/>
</Order>`

func parse(t *testing.T, doc string) *xmlquery.Node {
	t.Helper()
	root, err := xmlquery.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return root
}

func TestXML_SingleNodeIsObject(t *testing.T) {
	root := parse(t, orderXML)
	order := xmlquery.FindOne(root, "//*[local-name()='Order']")
	require.NotNil(t, order)

	out := New(nil).XML("order", []*xmlquery.Node{order})

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	body := got["Order"].(map[string]any)
	assert.Equal(t, "7", body["@id"])
	assert.NotContains(t, body, "@xmlns")
	assert.NotContains(t, body, "@xmlns:x")
	assert.NotContains(t, body, "@x")
	assert.Nil(t, body["Empty"])
	assert.Equal(t, map[string]any{"@lang": "en", "#text": "rush"}, body["Memo"])

	lines := body["Line"].([]any)
	require.Len(t, lines, 2)
	assert.Equal(t, map[string]any{"@sku": "A1", "Qty": "2"}, lines[0])
}

func TestXML_TwoNodesIsArray(t *testing.T) {
	root := parse(t, orderXML)
	lines := xmlquery.Find(root, "//*[local-name()='Line']")
	require.Len(t, lines, 2)

	out := New(nil).XML("lines", lines)

	var got []any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got, 2)
}

func TestXML_NoNodesIsNull(t *testing.T) {
	assert.Equal(t, "", New(nil).XML("none", nil))
}

func TestValue_Canonical(t *testing.T) {
	var doc any
	dec := json.NewDecoder(strings.NewReader(`{"b": 1, "a": [1.5, "x<y", {"z": null, "c": true}]}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&doc))

	c := New(nil)
	out := c.Value("doc", doc)
	assert.Equal(t, `{"a":[1.5,"x<y",{"c":true,"z":null}],"b":1}`, out)
	assert.Equal(t, out, c.Value("doc", doc), "output is stable")
	assert.Equal(t, "", c.Value("doc", nil))
}

func TestSizeWarning(t *testing.T) {
	var logs bytes.Buffer
	c := New(slog.New(slog.NewTextHandler(&logs, nil)))
	c.WarnSize = 10

	out := c.Value("big", map[string]any{"k": strings.Repeat("v", 20)})
	assert.Contains(t, out, strings.Repeat("v", 20), "value is still produced in full")
	assert.Contains(t, logs.String(), "large variant value")
	assert.Contains(t, logs.String(), "field=big")
}

func TestValue_KeepsNumberDigits(t *testing.T) {
	var doc any
	dec := json.NewDecoder(strings.NewReader(`{"id": 12345678901234567890, "amt": 1234567890.123456789, "qty": 1.50, "n": [-0.000000000000000000001]}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&doc))

	out := New(nil).Value("doc", doc)
	assert.Equal(t, `{"amt":1234567890.123456789,"id":12345678901234567890,"n":[-0.000000000000000000001],"qty":1.50}`, out)

	var back map[string]any
	back2 := json.NewDecoder(strings.NewReader(out))
	back2.UseNumber()
	require.NoError(t, back2.Decode(&back))
	assert.Equal(t, json.Number("12345678901234567890"), back["id"])
	assert.Equal(t, json.Number("1234567890.123456789"), back["amt"])
}
