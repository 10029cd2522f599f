package camera

import (
	"fmt"
	"net/url"
)

// Endpoint identifies an RTSP camera.
type Endpoint struct {
	IP       string
	Username string
	Password string
	Port     int // defaults to 554
	Channel  int // defaults to 1
}

func (e Endpoint) port() int {
	if e.Port == 0 {
		return 554
	}
	return e.Port
}

func (e Endpoint) channel() int {
	if e.Channel == 0 {
		return 1
	}
	return e.Channel
}

// CandidateURLs returns the RTSP URL formats used by common camera
// vendors (Hikvision, Dahua, generic h264 paths). They are tried in
// order until one yields a frame.
func (e Endpoint) CandidateURLs() []string {
	user := url.QueryEscape(e.Username)
	pass := url.QueryEscape(e.Password)
	host := fmt.Sprintf("rtsp://%s:%s@%s:%d", user, pass, e.IP, e.port())
	ch := e.channel()
	return []string{
		fmt.Sprintf("%s/h264/ch%d/main/av_stream", host, ch),
		fmt.Sprintf("%s/cam/realmonitor?channel=%d&subtype=0", host, ch),
		fmt.Sprintf("%s/Streaming/Channels/%d01", host, ch),
		fmt.Sprintf("%s/live/ch%d/main", host, ch),
	}
}
