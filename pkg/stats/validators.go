package stats

type LeaderboardQuery struct {
	Limit int `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
}
