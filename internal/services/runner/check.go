package runner

import (
	"fmt"

	"github.com/fgeck/wake-on-arp/internal/models"
	"github.com/rs/zerolog"
)

// CheckTargets compares the targets against the probe network
// probeLink.LocalIP/cfg.Subnet. Targets outside it only produce a warning,
// since ARP will never see them. A target on the network's first host
// address is taken to be the gateway and is also warned about unless
// cfg.AllowGateway is set. Only an unusable probe network is an error.
func CheckTargets(logger zerolog.Logger, cfg models.Config, probeLink models.LinkContext) error {
	network, err := probeLink.LocalIP.Prefix(cfg.Subnet)
	if err != nil {
		return fmt.Errorf("probe network %s/%d: %w", probeLink.LocalIP, cfg.Subnet, err)
	}
	gateway := network.Addr().Next()

	for i, t := range cfg.Targets {
		if !network.Contains(t.IP) {
			logger.Warn().
				Int("target", i).
				Str("ip", t.IP.String()).
				Str("network", network.String()).
				Msg("target is outside the probe network")
		}
		if t.IP == gateway && !cfg.AllowGateway {
			logger.Warn().
				Int("target", i).
				Str("ip", t.IP.String()).
				Str("network", network.String()).
				Msg("target is the gateway of the probe network, set allow_gateway to silence this")
		}
	}

	return nil
}
