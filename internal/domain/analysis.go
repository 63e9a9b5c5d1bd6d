package domain

import "time"

// Analysis is the structured judgment produced by the analysis
// collaborator for one successful probe response.
type Analysis struct {
	Reasoning         string
	CitedSources      []string
	Candidates        []string
	BestCandidate     string
	CustomerMentioned bool
	CustomerBest      bool
}

func (a Analysis) HasCitations() bool {
	return len(a.CitedSources) > 0
}

// Record is the persisted result of one successful session.
type Record struct {
	ID                string
	Customer          string
	AccountEmail      string
	Query             string
	CitedSources      []string
	Candidates        []string
	BestCandidate     string
	CustomerMentioned bool
	CustomerTopRanked bool
	CreatedAt         time.Time
}
