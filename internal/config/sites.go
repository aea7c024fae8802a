package config

import (
	"strings"

	"github.com/pkg/errors"
)

// parseSites reads GAM sites either as JSON [{"network_id","site"}] or as
// "network:site,network:site".
func parseSites(value string) ([]GAMSite, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if strings.HasPrefix(value, "[") {
		var sites []GAMSite
		if err := json.Unmarshal([]byte(value), &sites); err != nil {
			return nil, errors.Wrap(err, "decode GAM_SITES")
		}
		return sites, nil
	}

	var sites []GAMSite
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		network, site, ok := strings.Cut(pair, ":")
		if !ok || network == "" || site == "" {
			return nil, errors.Errorf("invalid GAM_SITES entry %q, want network:site", pair)
		}
		sites = append(sites, GAMSite{NetworkID: network, Site: site})
	}
	return sites, nil
}
