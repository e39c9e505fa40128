package directory

import (
	"fmt"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

// apiServer is the subset of a directory server record we read.
type apiServer struct {
	Hostname     string        `json:"hostname"`
	Station      string        `json:"station"`
	Load         int           `json:"load"`
	Locations    []apiLocation `json:"locations"`
	Technologies []apiTech     `json:"technologies"`
}

type apiLocation struct {
	Country struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
		Code string `json:"code"`
		City struct {
			Name string `json:"name"`
		} `json:"city"`
	} `json:"country"`
}

type apiTech struct {
	Identifier string `json:"identifier"`
	Metadata   []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"metadata"`
}

// publicKey returns the NordLynx key advertised by the server.
func (s apiServer) publicKey() (string, error) {
	for _, tech := range s.Technologies {
		if tech.Identifier != common.TechnologyIdentifier {
			continue
		}
		for _, md := range tech.Metadata {
			if md.Name == common.PublicKeyMetadata && md.Value != "" {
				return md.Value, nil
			}
		}
		// Older responses carry the key as the only, unnamed entry.
		if len(tech.Metadata) > 0 && tech.Metadata[0].Value != "" {
			return tech.Metadata[0].Value, nil
		}
		return "", fmt.Errorf("%w: %s has no %s metadata", common.ErrMalformedCandidate, s.Hostname, common.PublicKeyMetadata)
	}
	return "", fmt.Errorf("%w: %s does not offer %s", common.ErrMalformedCandidate, s.Hostname, common.TechnologyIdentifier)
}

func (s apiServer) candidate(tunnelAddress string) (vpn.CandidateServer, error) {
	if s.Hostname == "" {
		return vpn.CandidateServer{}, fmt.Errorf("%w: server without hostname", common.ErrMalformedCandidate)
	}
	key, err := s.publicKey()
	if err != nil {
		return vpn.CandidateServer{}, err
	}
	cand := vpn.CandidateServer{
		Hostname:      s.Hostname,
		Station:       s.Station,
		PublicKey:     key,
		Load:          s.Load,
		TunnelAddress: tunnelAddress,
	}
	if len(s.Locations) > 0 {
		loc := s.Locations[0].Country
		cand.CountryID = loc.ID
		cand.CountryName = loc.Name
		cand.City = loc.City.Name
	}
	return cand, nil
}
