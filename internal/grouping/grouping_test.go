package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintKnownDigests(t *testing.T) {
	tests := []struct {
		name       string
		dimensions map[string]string
		want       string
	}{
		{
			name:       "empty map hashes empty byte string",
			dimensions: map[string]string{},
			want:       "d41d8cd98f00b204e9800998ecf8427e",
		},
		{
			name:       "nil map behaves like empty map",
			dimensions: nil,
			want:       "d41d8cd98f00b204e9800998ecf8427e",
		},
		{
			name:       "single dimension",
			dimensions: map[string]string{"resource_name": "host-1"},
			want:       "17c1d197f7b7ac2a940c4a0254f53657",
		},
		{
			name:       "multiple dimensions sorted by key",
			dimensions: map[string]string{"service": "payments", "region": "us-east-1"},
			want:       "5f727b86614db25ae300a6895d425d67",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fingerprint(tt.dimensions))
			assert.Len(t, Fingerprint(tt.dimensions), 32)
		})
	}
}

func TestFingerprintOrderIndependence(t *testing.T) {
	a := map[string]string{}
	b := map[string]string{}
	keys := []string{"service", "region", "resource_name", "item", "source_id"}

	for _, k := range keys {
		a[k] = "v-" + k
	}
	for i := len(keys) - 1; i >= 0; i-- {
		b[keys[i]] = "v-" + keys[i]
	}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestValidateDimensions(t *testing.T) {
	assert.NoError(t, ValidateDimensions(map[string]string{"service": "payments"}))
	assert.NoError(t, ValidateDimensions(nil))
	assert.Error(t, ValidateDimensions(map[string]string{"": "payments"}))
	assert.Error(t, ValidateDimensions(map[string]string{"service": ""}))
}

func TestParseDimensionType(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    DimensionType
		wantErr bool
	}{
		{"application", "application", DimensionApplication, false},
		{"infrastructure", "infrastructure", DimensionInfrastructure, false},
		{"instance", "instance", DimensionInstance, false},
		{"custom", "custom", DimensionCustom, false},
		{"case and whitespace normalized", "  APPLICATION ", DimensionApplication, false},
		{"unknown value errors and falls back to instance", "galaxy", DimensionInstance, true},
		{"empty value errors", "", DimensionInstance, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDimensionType(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveFallbackOrder(t *testing.T) {
	tests := []struct {
		name   string
		dtype  DimensionType
		custom []string
		want   [][]string
	}{
		{
			name:  "instance walks to per-event grouping",
			dtype: DimensionInstance,
			want:  [][]string{{"resource_name"}, {"event_id"}},
		},
		{
			name:  "application walks the whole preset ladder",
			dtype: DimensionApplication,
			want:  [][]string{{"service"}, {"location"}, {"resource_name"}, {"event_id"}},
		},
		{
			name:  "infrastructure starts mid-ladder",
			dtype: DimensionInfrastructure,
			want:  [][]string{{"location"}, {"resource_name"}, {"event_id"}},
		},
		{
			name:   "custom uses declared dimensions only",
			dtype:  DimensionCustom,
			custom: []string{"service", "region"},
			want:   [][]string{{"service", "region"}},
		},
		{
			name:  "custom without dimensions degenerates to per-event",
			dtype: DimensionCustom,
			want:  [][]string{{"event_id"}},
		},
		{
			name:  "out-of-range type resolves like instance",
			dtype: DimensionType(42),
			want:  [][]string{{"resource_name"}, {"event_id"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.dtype, tt.custom))
		})
	}
}

func TestResolveCopiesCustomDimensions(t *testing.T) {
	custom := []string{"service", "region"}
	sets := Resolve(DimensionCustom, custom)
	sets[0][0] = "mutated"
	assert.Equal(t, "service", custom[0])
}
