package runner

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/fgeck/wake-on-arp/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTargets(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		subnet       int
		allowGateway bool
		wantWarn     string
	}{
		{name: "inside network", target: "10.0.0.5", subnet: 24},
		{name: "outside network", target: "10.0.1.5", subnet: 24, wantWarn: "outside the probe network"},
		{name: "gateway", target: "10.0.0.1", subnet: 24, wantWarn: "gateway"},
		{name: "gateway allowed", target: "10.0.0.1", subnet: 24, allowGateway: true},
		{name: "gateway of wider network", target: "10.0.0.1", subnet: 16, wantWarn: "gateway"},
		{name: "first host of other network", target: "10.0.1.1", subnet: 24, wantWarn: "outside the probe network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.Config{
				Subnet:       tt.subnet,
				AllowGateway: tt.allowGateway,
				Targets:      []models.Target{{IP: netip.MustParseAddr(tt.target), MAC: wakeMAC}},
			}
			probe := models.LinkContext{LocalIP: netip.MustParseAddr("10.0.0.7")}

			var buf bytes.Buffer
			err := CheckTargets(zerolog.New(&buf), cfg, probe)

			require.NoError(t, err)
			if tt.wantWarn == "" {
				assert.Empty(t, buf.String())
			} else {
				assert.Contains(t, buf.String(), `"level":"warn"`)
				assert.Contains(t, buf.String(), tt.wantWarn)
			}
		})
	}
}

func TestCheckTargets_InvalidSubnet(t *testing.T) {
	cfg := models.Config{Subnet: 33}
	probe := models.LinkContext{LocalIP: netip.MustParseAddr("10.0.0.7")}

	require.Error(t, CheckTargets(testLogger(), cfg, probe))
}
