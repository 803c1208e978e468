package origin

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/* Rules describe which senders are allowed to reach the engine
 * Loaded once at startup from a YAML file and held in memory
 */
type Rules struct {
	// CIDRs lists the source networks allowed to deliver webhooks
	CIDRs []string `yaml:"cidrs"`

	// BearerIssuers lists accepted bearer token prefixes, e.g. "mailer_"
	BearerIssuers []string `yaml:"bearer_issuers"`
}

// rulesFile is the on-disk structure of the rules YAML
type rulesFile struct {
	AllowList Rules `yaml:"allow_list"`
}

// LoadRules reads and parses the origin rules file
func LoadRules(filePath string) (Rules, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Rules{}, fmt.Errorf("reading rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("parsing rules YAML: %w", err)
	}

	return file.AllowList, nil
}
