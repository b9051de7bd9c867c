package webhook

import (
	"regexp"
	"strconv"
	"strings"
)

// idSource is one strategy for pulling an AniDB ID out of a payload. The
// sources are tried in a fixed priority order and the first hit wins.
type idSource struct {
	name    string
	extract func(p *Payload) (int, bool)
}

// Jellyfin's AniDB plugin writes under "anidb"; some setups route AniDB
// IDs through the tvdb slot.
var providerKeys = []string{"anidb", "AniDB", "tvdb", "TVDB"}

var metadataKeys = []string{"anidb_id", "AniDBId", "anidb", "AniDB"}

var bracketedID = regexp.MustCompile(`\[(\d+)\]`)

var idSources = []idSource{
	{
		name: "provider_ids",
		extract: func(p *Payload) (int, bool) {
			for _, key := range providerKeys {
				if raw, ok := p.ProviderIDs[key]; ok {
					if id, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && id > 0 {
						return id, true
					}
				}
			}
			return 0, false
		},
	},
	{
		name: "metadata",
		extract: func(p *Payload) (int, bool) {
			for _, key := range metadataKeys {
				if raw, ok := p.Metadata[key]; ok {
					if id, ok := coerceInt(raw); ok && id > 0 {
						return id, true
					}
				}
			}
			return 0, false
		},
	},
	{
		name: "name_pattern",
		extract: func(p *Payload) (int, bool) {
			name := p.SeriesName
			if name == "" {
				name = p.ItemName
			}
			if name == "" {
				return 0, false
			}
			m := bracketedID.FindStringSubmatch(name)
			if m == nil {
				return 0, false
			}
			id, err := strconv.Atoi(m[1])
			if err != nil || id <= 0 {
				return 0, false
			}
			return id, true
		},
	},
}

// ExtractAniDBID resolves the external series identifier from a payload,
// returning the source name that matched. ok is false when no source hit;
// the caller must not guess an ID in that case.
func ExtractAniDBID(p *Payload) (id int, source string, ok bool) {
	for _, src := range idSources {
		if id, ok := src.extract(p); ok {
			return id, src.name, true
		}
	}
	return 0, "", false
}

func coerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}
