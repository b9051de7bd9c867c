package mal

import "animehub/pkg/models"

// AnimeNode is the anime object shape MAL returns inside list and search
// responses. Only the fields we request via the fields parameter are set.
type AnimeNode struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	MainPicture struct {
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"main_picture"`
	AlternativeTitles struct {
		En string `json:"en"`
		Ja string `json:"ja"`
	} `json:"alternative_titles"`
	Synopsis    string   `json:"synopsis"`
	NumEpisodes int      `json:"num_episodes"`
	Status      string   `json:"status"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	Mean        float64  `json:"mean"`
	Rank        int      `json:"rank"`
	Popularity  int      `json:"popularity"`
	StartSeason struct {
		Year   int    `json:"year"`
		Season string `json:"season"`
	} `json:"start_season"`
}

// ToModel converts the wire shape into a catalog row. Zero values from
// MAL become nil so the merge logic can tell "absent" from "zero".
func (n AnimeNode) ToModel() models.Anime {
	a := models.Anime{
		MALID:        n.ID,
		Title:        n.Title,
		TitleEnglish: n.AlternativeTitles.En,
		Synopsis:     n.Synopsis,
		AiringStatus: n.Status,
		ImageURL:     n.MainPicture.Large,
	}
	if a.ImageURL == "" {
		a.ImageURL = n.MainPicture.Medium
	}
	if n.NumEpisodes > 0 {
		eps := n.NumEpisodes
		a.Episodes = &eps
	}
	if n.StartDate != "" {
		s := n.StartDate
		a.AiredFrom = &s
	}
	if n.EndDate != "" {
		s := n.EndDate
		a.AiredTo = &s
	}
	if n.Mean > 0 {
		m := n.Mean
		a.Score = &m
	}
	if n.Rank > 0 {
		r := n.Rank
		a.Rank = &r
	}
	if n.Popularity > 0 {
		p := n.Popularity
		a.Popularity = &p
	}
	if n.StartSeason.Year > 0 {
		y := n.StartSeason.Year
		a.SeasonYear = &y
		a.SeasonName = n.StartSeason.Season
	}
	return a
}

// ListStatus is the user's per-anime list entry as MAL reports it.
type ListStatus struct {
	Status             string `json:"status"`
	Score              int    `json:"score"`
	NumEpisodesWatched int    `json:"num_episodes_watched"`
	IsRewatching       bool   `json:"is_rewatching"`
	StartDate          string `json:"start_date"`
	FinishDate         string `json:"finish_date"`
	Comments           string `json:"comments"`
	UpdatedAt          string `json:"updated_at"`
}

// ListStatusUpdate is the PATCH body for my_list_status. Pointer fields
// are omitted when nil so an update only touches what the caller set.
type ListStatusUpdate struct {
	Status             *string `json:"status,omitempty"`
	Score              *int    `json:"score,omitempty"`
	NumWatchedEpisodes *int    `json:"num_watched_episodes,omitempty"`
	StartDate          *string `json:"start_date,omitempty"`
	FinishDate         *string `json:"finish_date,omitempty"`
	Comments           *string `json:"comments,omitempty"`
}

type AnimeListEntry struct {
	Node       AnimeNode  `json:"node"`
	ListStatus ListStatus `json:"list_status"`
}

type Paging struct {
	Previous string `json:"previous"`
	Next     string `json:"next"`
}

type AnimeListPage struct {
	Data   []AnimeListEntry `json:"data"`
	Paging Paging           `json:"paging"`
}

type SearchPage struct {
	Data []struct {
		Node AnimeNode `json:"node"`
	} `json:"data"`
	Paging Paging `json:"paging"`
}
