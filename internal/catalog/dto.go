package catalog

// envelope is the common shape of every catalog API response
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SongDTO is a song as serialized by the catalog server
type SongDTO struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	Duration     float64 `json:"duration"` // seconds
	YoutubeURL   string  `json:"youtube_url"`
	ThumbnailURL string  `json:"thumbnail_url"`
	CreatedAt    string  `json:"created_at"`
}

type songsResponse struct {
	envelope
	Songs []SongDTO `json:"songs"`
}

type songResponse struct {
	envelope
	Song SongDTO `json:"song"`
}

type blobResponse struct {
	envelope
	Audio string  `json:"audio"` // base64
	Song  SongDTO `json:"song"`
}

type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	envelope
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	URL       string  `json:"url"`
}

type downloadRequest struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
}
