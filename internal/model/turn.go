package model

// Turn is the narrator's answer to one player message.
type Turn struct {
	Speaker        string `json:"speaker"`
	Text           string `json:"text"`
	Location       string `json:"location"`
	DisplayLine    string `json:"display_line"`
	AudioSrcBase64 string `json:"audio_src_base64,omitempty"`
	AudioPath      string `json:"audio_path,omitempty"`
	AudioURL       string `json:"audio_url,omitempty"`
}
