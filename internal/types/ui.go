package types

type ChannelSnapshot struct {
	Values []float32 `json:"values"`
	Mask   []bool    `json:"mask"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Mean   float64   `json:"mean"`
}

type UISnapshot struct {
	Type     string                     `json:"type"`
	Sequence uint64                     `json:"sequence"`
	Width    int                        `json:"width"`
	Height   int                        `json:"height"`
	Data     map[string]ChannelSnapshot `json:"data"`
}
