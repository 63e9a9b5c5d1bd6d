package tomlfile

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
	Results  []resultSchema  `toml:"results"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported store schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type accountSchema struct {
	Email     string `toml:"email"`
	Password  string `toml:"password"`
	Failures  int    `toml:"failures"`
	Usages    int    `toml:"usages"`
	CreatedAt string `toml:"created_at"`
}

type resultSchema struct {
	ID                string   `toml:"id"`
	Customer          string   `toml:"customer"`
	AccountEmail      string   `toml:"account_email"`
	Query             string   `toml:"query"`
	CitedSources      []string `toml:"cited_sources"`
	Candidates        []string `toml:"candidates"`
	BestCandidate     string   `toml:"best_candidate"`
	CustomerMentioned bool     `toml:"customer_mentioned"`
	CustomerTopRanked bool     `toml:"customer_top_ranked"`
	CreatedAt         string   `toml:"created_at"`
}
