package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToContentItemsString(t *testing.T) {
	items := ToContentItems("hello", "", "")
	require.Len(t, items, 1)
	assert.Equal(t, "text", items[0].Type)
	assert.Equal(t, "hello", items[0].Text)
	assert.Equal(t, "text/plain", items[0].MimeType)
}

func TestToContentItemsBytesSniffsMimeType(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	items := ToContentItems(png, "", "")
	require.Len(t, items, 1)
	assert.Equal(t, "blob", items[0].Type)
	assert.Equal(t, "image/png", items[0].MimeType)
	assert.NotEmpty(t, items[0].Blob)
}

func TestToContentItemsBytesUnknownFallsBackToOctetStream(t *testing.T) {
	items := ToContentItems([]byte{0x00, 0x01, 0x02}, "", "")
	assert.Equal(t, "application/octet-stream", items[0].MimeType)
}

func TestToContentItemsExplicitMimeTypeWins(t *testing.T) {
	items := ToContentItems([]byte("plain text data"), "text/plain", "")
	assert.Equal(t, "text/plain", items[0].MimeType)
}

func TestToContentItemsPassThroughFillsDefaultURI(t *testing.T) {
	in := []ContentItem{{Type: "text", Text: "a"}, {Type: "text", Text: "b", URI: "note://explicit"}}
	items := ToContentItems(in, "", "note://default")
	require.Len(t, items, 2)
	assert.Equal(t, "note://default", items[0].URI, "empty URI should be filled from defaultURI")
	assert.Equal(t, "note://explicit", items[1].URI, "existing URI must not be overwritten")
}

func TestToContentItemsToolResponsePassesThroughContent(t *testing.T) {
	resp := ToolResponse{Content: []ContentItem{{Type: "text", Text: "x"}}}
	assert.Equal(t, resp.Content, ToContentItems(resp, "", ""))
	assert.Equal(t, resp.Content, ToContentItems(&resp, "", ""))
}

func TestToContentItemsArbitraryValueIsJSONEncoded(t *testing.T) {
	items := ToContentItems(map[string]any{"sum": 3}, "", "")
	require.Len(t, items, 1)
	assert.Equal(t, "application/json", items[0].MimeType)
	assert.Contains(t, items[0].Text, `"sum"`)
}

func TestSniffMimeTypeEmptyData(t *testing.T) {
	assert.Equal(t, "application/octet-stream", SniffMimeType(nil))
}
