// Package tmdb provides a client for The Movie Database API and a movie
// discoverer built on its search endpoint.
package tmdb

import "strconv"

// Movie represents TMDB movie metadata.
type Movie struct {
	ID          int64   `json:"id"`
	IMDBID      string  `json:"imdb_id,omitempty"`
	Title       string  `json:"title"`
	Original    string  `json:"original_title,omitempty"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"` // "2024-03-01"
	Popularity  float64 `json:"popularity"`
	VoteCount   int     `json:"vote_count"`
	Runtime     int     `json:"runtime"` // minutes
}

// Year extracts the year from ReleaseDate.
func (m *Movie) Year() int {
	if len(m.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(m.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

type searchResponse struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalResults int     `json:"total_results"`
}
