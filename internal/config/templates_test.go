package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDescription(t *testing.T) {
	tests := []struct {
		name  string
		query QueryConfig
		want  string
	}{
		{
			name:  "plain text passes through",
			query: QueryConfig{QueryID: "customer-data", Description: "E2E test customer data"},
			want:  "E2E test customer data",
		},
		{
			name:  "empty gets generic description",
			query: QueryConfig{QueryID: "orders"},
			want:  "Results of continuous query orders",
		},
		{
			name: "template fields",
			query: QueryConfig{
				QueryID:             "products",
				KeyField:            "product_id",
				ResourceContentType: "application/json",
				Description:         "Query {{ .QueryID }} keyed by {{ .KeyField }}",
			},
			want: "Query products keyed by product_id",
		},
		{
			name: "sprig functions",
			query: QueryConfig{
				QueryID:     "products",
				Description: "{{ .QueryID | upper }} feed",
			},
			want: "PRODUCTS feed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderDescription(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderDescription_BadTemplate(t *testing.T) {
	_, err := renderDescription(QueryConfig{
		QueryID:     "products",
		Description: "{{ .QueryID",
	})
	require.Error(t, err)
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Field, "products")
}

func TestRenderDescription_UnknownField(t *testing.T) {
	_, err := renderDescription(QueryConfig{
		QueryID:     "products",
		Description: "{{ .NoSuchField }}",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template execution failed")
}
