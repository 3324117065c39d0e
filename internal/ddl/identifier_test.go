package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "simple", input: "raw_loans"},
		{name: "underscore_prefix", input: "_stage"},
		{name: "mixed_case", input: "FactLoan"},
		{name: "with_digits", input: "loans2024"},
		{name: "max_length", input: strings.Repeat("a", 128)},

		{name: "empty", input: "", wantErr: "name is required"},
		{name: "too_long", input: strings.Repeat("a", 129), wantErr: "at most 128 characters"},
		{name: "starts_with_digit", input: "1loans", wantErr: "must match"},
		{name: "contains_space", input: "raw loans", wantErr: "must match"},
		{name: "contains_hyphen", input: "raw-loans", wantErr: "must match"},
		{name: "contains_dot", input: "raw.loans", wantErr: "must match"},
		{name: "sql_injection", input: "loans; DROP TABLE", wantErr: "must match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "loan_id", want: `"loan_id"`},
		{name: "with_space", input: "Loan Amount", want: `"Loan Amount"`},
		{name: "with_double_quote", input: `my"col`, want: `"my""col"`},
		{name: "empty", input: "", want: `""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteIdentifier(tt.input))
		})
	}
}

func TestQuoteLiteral(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple", input: "hello", want: "'hello'"},
		{name: "with_single_quote", input: "it's", want: "'it''s'"},
		{name: "path_with_quote", input: "/tmp/it's here/x.parquet", want: "'/tmp/it''s here/x.parquet'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteLiteral(tt.input))
		})
	}
}
