package materialize

import (
	"testing"

	"github.com/agentic-research/rowcast/api"
	"github.com/agentic-research/rowcast/internal/config"
	"github.com/agentic-research/rowcast/internal/reader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func ordersPlan(t *testing.T, mutate func(*api.Config)) *config.Plan {
	t.Helper()
	cfg := &api.Config{
		FormatType: api.FormatCSV,
		ComputedFields: []api.ComputedFieldSpec{
			{Name: "order_key", Formula: "upper({OrderID}-{Customer})"},
		},
		Records: []api.RecordSpec{{
			Name: "orders",
			Fields: []api.FieldSpec{
				{Name: "OrderID", Path: "OrderID", Nullable: ptr(false), Regex: `ORD\d+`},
				{Name: "Customer", Path: "Customer"},
				{Name: "Total", Path: "Total", Type: "decimal", MinValue: ptr(0.0), MaxValue: ptr(1000.0)},
				{Name: "Key", Type: "computed", ComputedField: "order_key"},
			},
			Context:  []api.ContextField{{Name: "source", Value: "POS"}},
			Computed: []api.ComputedFieldSpec{{Name: "Double", Formula: "{Total}{Total}", Type: "decimal"}},
		}},
	}
	if mutate != nil {
		mutate(cfg)
	}
	plan, err := config.Compile(cfg)
	require.NoError(t, err)
	return plan
}

func raw(rec *config.Record, values ...string) reader.RawRecord {
	r := reader.RawRecord{Spec: rec, Ordinal: 1, Fields: make([]reader.RawValue, len(rec.Fields))}
	for i, v := range values {
		r.Fields[i] = reader.RawValue{Text: v, Present: true}
	}
	return r
}

func TestMaterialize_Accepted(t *testing.T) {
	plan := ordersPlan(t, nil)
	rec := plan.Records[0]

	out := New(plan).Materialize(raw(rec, " ORD123 ", "Jane", "$1,000.00"))
	require.Nil(t, out.Rejected)
	require.NotNil(t, out.Accepted)
	assert.Equal(t, []string{"OrderID", "Customer", "Total", "source", "Key", "Double"}, rec.Columns)
	assert.Equal(t, []string{"ORD123", "Jane", "1000.00", "POS", "ORD123-JANE", ""}, out.Accepted.Texts())
}

func TestMaterialize_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"null OrderID", []string{"", "Jane", "100"}, "Field 'OrderID' cannot be null"},
		{"regex", []string{"X1", "Jane", "100"}, "Field 'OrderID' failed regex validation: ORD\\d+"},
		{"below minimum", []string{"ORD123", "", "-50"}, "Field 'Total' value -50 below minimum 0"},
		{"above maximum", []string{"ORD123", "", "1000.5"}, "Field 'Total' value 1000.5 above maximum 1000"},
		{"first failure wins", []string{"", "", "-50"}, "Field 'OrderID' cannot be null"},
	}
	plan := ordersPlan(t, nil)
	m := New(plan)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := m.Materialize(raw(plan.Records[0], tt.values...))
			require.Nil(t, out.Accepted)
			require.NotNil(t, out.Rejected)
			assert.Equal(t, tt.want, out.Rejected.Reason)
			assert.Equal(t, tt.values, out.Rejected.Raw[:len(tt.values)], "raw values are kept")
		})
	}
}

func TestMaterialize_RejectedRowKeepsAllRawValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*api.Config)
		values []string
		reason string
	}{
		{
			name:   "validation failure",
			values: []string{"", "Jane", "100"},
			reason: "Field 'OrderID' cannot be null",
		},
		{
			name: "strict cast failure before later fields",
			mutate: func(c *api.Config) {
				c.CastMode = api.CastStrict
				c.Records[0].Fields[1].Type = "int"
			},
			values: []string{"ORD1", "Jane", "55"},
			reason: "Field 'Customer' cast failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := ordersPlan(t, tt.mutate)
			out := New(plan).Materialize(raw(plan.Records[0], tt.values...))
			require.NotNil(t, out.Rejected)
			assert.Contains(t, out.Rejected.Reason, tt.reason)
			want := append(append([]string{}, tt.values...), "POS", "", "")
			assert.Equal(t, want, out.Rejected.Raw)
		})
	}
}

func TestMaterialize_SafeVsStrict(t *testing.T) {
	values := []string{"ORD1", "Jane", "abc"}

	safe := ordersPlan(t, nil)
	out := New(safe).Materialize(raw(safe.Records[0], values...))
	require.NotNil(t, out.Accepted)
	assert.Nil(t, out.Accepted.Values[2], "failed cast becomes null")

	strict := ordersPlan(t, func(c *api.Config) { c.CastMode = api.CastStrict })
	out = New(strict).Materialize(raw(strict.Records[0], values...))
	require.NotNil(t, out.Rejected)
	assert.Contains(t, out.Rejected.Reason, "Field 'Total' cast failed")

	// A failed cast on a non-nullable field is a null violation in safe mode.
	notNull := ordersPlan(t, func(c *api.Config) {
		c.Records[0].Fields[2].Nullable = ptr(false)
	})
	out = New(notNull).Materialize(raw(notNull.Records[0], values...))
	require.NotNil(t, out.Rejected)
	assert.Equal(t, "Field 'Total' cannot be null", out.Rejected.Reason)
}

func TestMaterialize_ComputedCastFollowsMode(t *testing.T) {
	// "{Total}{Total}" of 1.5 is "1.51.5", not a decimal.
	values := []string{"ORD1", "Jane", "1.5"}

	safe := ordersPlan(t, nil)
	out := New(safe).Materialize(raw(safe.Records[0], values...))
	require.NotNil(t, out.Accepted)
	assert.Nil(t, out.Accepted.Values[5])

	strict := ordersPlan(t, func(c *api.Config) { c.CastMode = api.CastStrict })
	out = New(strict).Materialize(raw(strict.Records[0], values...))
	require.NotNil(t, out.Rejected)
	assert.Equal(t, "1.51.5", out.Rejected.Raw[5])
	assert.Contains(t, out.Rejected.Reason, "Field 'Double' cast failed")

	out = New(strict).Materialize(raw(strict.Records[0], "ORD1", "Jane", "7"))
	require.NotNil(t, out.Accepted)
	assert.Equal(t, "77", out.Accepted.Texts()[5])
}

func TestMaterialize_ComputedConstraints(t *testing.T) {
	plan := ordersPlan(t, func(c *api.Config) {
		c.ComputedFields[0].Formula = "{Customer}"
		c.Records[0].Fields[3].Nullable = ptr(false)
	})
	out := New(plan).Materialize(raw(plan.Records[0], "ORD1", "", "1"))
	require.NotNil(t, out.Rejected)
	assert.Equal(t, "Field 'Key' cannot be null", out.Rejected.Reason)
}

func TestMaterialize_DefaultsAndTrim(t *testing.T) {
	plan := ordersPlan(t, func(c *api.Config) {
		c.Records[0].Fields[1].Default = ptr("anonymous")
		c.TrimStrings = ptr(false)
	})
	rec := plan.Records[0]

	r := raw(rec, "ORD1")
	out := New(plan).Materialize(r)
	require.NotNil(t, out.Accepted)
	assert.Equal(t, "anonymous", out.Accepted.Values[1])

	out = New(plan).Materialize(raw(rec, "ORD1", " Jane "))
	require.NotNil(t, out.Accepted)
	assert.Equal(t, " Jane ", out.Accepted.Values[1])
}
