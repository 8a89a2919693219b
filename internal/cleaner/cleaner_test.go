package cleaner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingqty/internal/qty"
)

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "normalize this", NormalizeWhitespace("   normalize\n\t\t this   "))
}

func TestRemoveSymbols(t *testing.T) {
	assert.Equal(t, "get rid of symbols", RemoveSymbols("get rid of &&*^//symbols"))
	assert.Equal(t, "naïve café 12", RemoveSymbols("naïve café! #12"))
}

func TestDefaultField(t *testing.T) {
	rec := NewRecord("field", "   normalize \t\t whitespace ")
	assert.Equal(t, "normalize whitespace", DefaultField(rec, "field"))
}

func TestCleanPrice(t *testing.T) {
	assert.Equal(t, "1000000.00", CleanPrice("  $1,000,000.00\n"))
}

func TestClean(t *testing.T) {
	in := NewRecord(
		"brand", "  Evil Corp.  ",
		"desc", "The most evil product ever!\n\n\t Something for the whole family.  ",
		"model", " EVIL99 ",
		"price", " $1,000,000.00 dollars",
		"sku", " EVIL99",
		"title", " Super evil product!!! ",
	)
	want := NewRecord(
		"brand", "Evil Corp.",
		"desc", "The most evil product ever! Something for the whole family.",
		"model", "EVIL99",
		"price", "1000000.00",
		"sku", "EVIL99",
		"title", "Super evil product!!!",
	)

	got := New().Clean(in)
	assert.Equal(t, want.Keys(), got.Keys())
	for _, key := range want.Keys() {
		assert.Equal(t, want.Value(key), got.Value(key), key)
	}
}

func TestCleanRegisteredHandler(t *testing.T) {
	c := New()
	c.Register("SKU", func(rec Record, key string) string {
		return RemoveSymbols(NormalizeWhitespace(rec.Value(key)))
	})
	c.SetDefault(func(rec Record, key string) string { return "x" })

	got := c.Clean(NewRecord("sku", " AB-12/3 ", "other", "anything"))
	assert.Equal(t, "AB123", got.Value("sku"))
	assert.Equal(t, "x", got.Value("other"))
}

func TestStripHTML(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain text untouched", input: "a < b and 12 > 6", want: "a < b and 12 > 6"},
		{name: "tags", input: "<p>Set of <b>6</b></p>", want: "Set of 6"},
		{name: "entities", input: "Salt &amp; pepper", want: "Salt & pepper"},
		{name: "line breaks", input: "12 pack<br>6 each", want: "12 pack 6 each"},
		{name: "scripts dropped", input: "<div>24 ct</div><script>var x = 1;</script>", want: "24 ct"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeWhitespace(StripHTML(tc.input)))
		})
	}
}

func TestWithQuantity(t *testing.T) {
	c := New().WithQuantity(qty.New(), []string{"title", "desc"})

	got := c.Clean(NewRecord(
		"title", "Napkins 12-pack",
		"desc", "<ul><li>12 per pack</li><li>2-ply</li></ul>",
		"price", "$4.99",
	))
	assert.Equal(t, []string{"title", "desc", "price", QuantityColumn}, got.Keys())
	assert.Equal(t, "12", got.Value(QuantityColumn))

	got = c.Clean(NewRecord("title", "Cast iron skillet", "price", "30"))
	assert.Equal(t, "", got.Value(QuantityColumn))
}

func TestListingText(t *testing.T) {
	rec := NewRecord("Desc", "box of 6", "Title", "Mugs", "sku", "12 pack")
	assert.Equal(t, "Mugs | box of 6", ListingText(rec, []string{"title", "desc"}))
}

func TestRecordJSONKeepsOrder(t *testing.T) {
	rec := NewRecord("title", "Mugs", "price", "4.00", "a", "")
	blob, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Mugs","price":"4.00","a":""}`, string(blob))

	var back Record
	require.NoError(t, json.Unmarshal(blob, &back))
	assert.Equal(t, rec.Keys(), back.Keys())
	assert.Equal(t, "4.00", back.Value("price"))

	assert.Error(t, json.Unmarshal([]byte(`["x"]`), &back))
}

func TestFromRow(t *testing.T) {
	rec := FromRow([]string{"a", "b", "c"}, []string{"1", "2"})
	assert.Equal(t, []string{"1", "2", ""}, rec.Row([]string{"a", "b", "c"}))

	clone := rec.Clone()
	clone.Set("a", "changed")
	assert.Equal(t, "1", rec.Value("a"))
}
