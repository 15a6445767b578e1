package models

// AnimeSummary is one search result entry.
type AnimeSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Poster   string `json:"poster,omitempty"`
	Type     string `json:"type,omitempty"`
	SubCount int    `json:"subCount,omitempty"`
	DubCount int    `json:"dubCount,omitempty"`
}

// AnimeList is a page of search results.
type AnimeList struct {
	Results     []AnimeSummary `json:"results"`
	Page        int            `json:"page"`
	TotalPages  int            `json:"totalPages"`
	HasNextPage bool           `json:"hasNextPage"`
}

// SeriesInfo is the detail view of one series.
type SeriesInfo struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Poster        string   `json:"poster,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Status        string   `json:"status,omitempty"`
	TotalEpisodes int      `json:"totalEpisodes"`
}

// Episode is one entry of a series' episode list.
type Episode struct {
	EpisodeID string `json:"episodeId"`
	Number    string `json:"number"`
	Title     string `json:"title,omitempty"`
	IsFiller  bool   `json:"isFiller,omitempty"`
}
